package rpcpool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pubkeyLike struct{ b58 string }

func (p pubkeyLike) String() string { return p.b58 }

type selfDescribing struct{ Slot uint64 }

func (s selfDescribing) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]uint64{"slot": s.Slot})
}

type cyclic struct {
	Name string
	Next *cyclic
}

func TestNormalizePrimitivesPassThrough(t *testing.T) {
	cases := []interface{}{nil, true, "vote111", 42, int64(-7), 3.14, uint64(1 << 60)}
	for _, in := range cases {
		assert.Equal(t, in, Normalize(in))
	}
}

func TestNormalizeStringerToCanonicalForm(t *testing.T) {
	key := pubkeyLike{b58: "Vote111111111111111111111111111111111111111"}
	assert.Equal(t, "Vote111111111111111111111111111111111111111", Normalize(key))
}

func TestNormalizeSelfDescribing(t *testing.T) {
	got := Normalize(selfDescribing{Slot: 250000000})
	require.IsType(t, map[string]interface{}{}, got)
	assert.Equal(t, float64(250000000), got.(map[string]interface{})["slot"])
}

func TestNormalizeRawMessage(t *testing.T) {
	raw := json.RawMessage(`{"current":[{"votePubkey":"abc"}],"delinquent":[]}`)
	got := Normalize(raw)
	m, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, m, "current")
}

func TestNormalizeStructReflection(t *testing.T) {
	in := struct {
		Slot   uint64 `json:"slot"`
		Leader string `json:"leader"`
		hidden int
	}{Slot: 9, Leader: "node1", hidden: 3}

	got := Normalize(in)
	m, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, uint64(9), m["slot"])
	assert.Equal(t, "node1", m["leader"])
	assert.NotContains(t, m, "hidden")
}

func TestNormalizeCycleSafe(t *testing.T) {
	a := &cyclic{Name: "a"}
	b := &cyclic{Name: "b", Next: a}
	a.Next = b

	// Must terminate and produce something JSON-safe.
	got := Normalize(a)
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestNormalizeCyclicMapTerminates(t *testing.T) {
	m := map[string]interface{}{"name": "loop"}
	m["self"] = m

	got := Normalize(m)
	out, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "loop", out["name"])
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestNormalizeCyclicSliceTerminates(t *testing.T) {
	s := make([]interface{}, 2)
	s[0] = "head"
	s[1] = s

	got := Normalize(s)
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestNormalizeIndirectMapCycle(t *testing.T) {
	a := map[string]interface{}{}
	b := map[string]interface{}{"a": a}
	a["b"] = b

	got := Normalize(a)
	_, err := json.Marshal(got)
	require.NoError(t, err)

	// Shared but acyclic references are still descended twice.
	leaf := map[string]interface{}{"v": 1.0}
	both := map[string]interface{}{"x": leaf, "y": leaf}
	norm, ok := Normalize(both).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, norm["x"], norm["y"])
}

func TestNormalizeDepthBounded(t *testing.T) {
	v := interface{}("leaf")
	for i := 0; i < 4*maxNormalizeDepth; i++ {
		v = map[string]interface{}{"next": v}
	}

	got := Normalize(v)
	_, err := json.Marshal(got)
	require.NoError(t, err)
}

func TestFindFieldOnCyclicInput(t *testing.T) {
	m := map[string]interface{}{"blockhash": "h1"}
	m["self"] = m

	got, ok := FindField(m, "blockhash")
	require.True(t, ok)
	assert.Equal(t, "h1", got)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []interface{}{
		map[string]interface{}{"a": 1.0, "b": []interface{}{"x", 2.0}},
		[]interface{}{[]interface{}{"nested"}, map[string]interface{}{"k": nil}},
		selfDescribing{Slot: 5},
		pubkeyLike{b58: "abc"},
		func() interface{} {
			c := &cyclic{Name: "loop"}
			c.Next = c
			return c
		}(),
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestFindFieldNested(t *testing.T) {
	// Providers nest the validator list at different depths.
	shapeA := map[string]interface{}{
		"current": []interface{}{map[string]interface{}{"votePubkey": "v1"}},
	}
	shapeB := map[string]interface{}{
		"result": map[string]interface{}{
			"value": map[string]interface{}{
				"current": []interface{}{map[string]interface{}{"votePubkey": "v2"}},
			},
		},
	}

	got, ok := FindField(shapeA, "votePubkey")
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	got, ok = FindField(shapeB, "votePubkey")
	require.True(t, ok)
	assert.Equal(t, "v2", got)

	_, ok = FindField(shapeA, "absent")
	assert.False(t, ok)
}

func TestFindFieldPrefersShallowestInPath(t *testing.T) {
	in := map[string]interface{}{
		"value": map[string]interface{}{"value": "deep"},
	}
	got, ok := FindField(in, "value")
	require.True(t, ok)
	// Direct hit at the current level wins before descent.
	assert.Equal(t, map[string]interface{}{"value": "deep"}, got)
}

func TestFindFieldOnRawMessage(t *testing.T) {
	raw := json.RawMessage(`{"context":{"slot":100},"value":{"blockhash":"h123"}}`)
	got, ok := FindField(raw, "blockhash")
	require.True(t, ok)
	assert.Equal(t, "h123", got)
}
