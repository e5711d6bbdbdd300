package rpcpool

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// maxNormalizeDepth bounds recursion against pathological or circular
// inputs; anything deeper collapses to its string form.
const maxNormalizeDepth = 64

// Normalize converts an arbitrary provider result into a JSON-safe
// value: nil, bool, number, string, []interface{} or
// map[string]interface{}. It is total (never panics, never errors) and
// idempotent. Chain-native key types surface as their canonical string
// form, self-describing values are invoked, structs are reflected over
// exported fields, and anything else degrades to fmt.Sprint.
func Normalize(raw interface{}) interface{} {
	return normalize(raw, 0, make(map[uintptr]bool))
}

func normalize(raw interface{}, depth int, seen map[uintptr]bool) interface{} {
	if raw == nil {
		return nil
	}
	if depth > maxNormalizeDepth {
		return cut(raw)
	}

	switch v := raw.(type) {
	case bool, string, float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v
	case json.Number:
		return v.String()
	case json.RawMessage:
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return string(v)
		}
		return normalize(decoded, depth+1, seen)
	case []interface{}:
		if len(v) > 0 {
			ptr := reflect.ValueOf(v).Pointer()
			if seen[ptr] {
				return cut(v)
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalize(item, depth+1, seen)
		}
		return out
	case map[string]interface{}:
		ptr := reflect.ValueOf(v).Pointer()
		if seen[ptr] {
			return cut(v)
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = normalize(item, depth+1, seen)
		}
		return out
	}

	// Self-describing values get to choose their own shape.
	if m, ok := raw.(json.Marshaler); ok {
		if encoded, err := m.MarshalJSON(); err == nil {
			var decoded interface{}
			if json.Unmarshal(encoded, &decoded) == nil {
				return normalize(decoded, depth+1, seen)
			}
		}
	}
	if tm, ok := raw.(encoding.TextMarshaler); ok {
		if text, err := tm.MarshalText(); err == nil {
			return string(text)
		}
	}
	// Chain-native keys and similar opaque identifiers.
	if s, ok := raw.(fmt.Stringer); ok {
		return s.String()
	}

	return normalizeReflect(reflect.ValueOf(raw), depth, seen)
}

func normalizeReflect(v reflect.Value, depth int, seen map[uintptr]bool) interface{} {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Ptr {
			ptr := v.Pointer()
			if seen[ptr] {
				return cut(v.Interface())
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		return normalize(v.Elem().Interface(), depth+1, seen)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Slice && v.Len() > 0 {
			ptr := v.Pointer()
			if seen[ptr] {
				return cut(v.Interface())
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = normalize(v.Index(i).Interface(), depth+1, seen)
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return cut(v.Interface())
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			out[key] = normalize(iter.Value().Interface(), depth+1, seen)
		}
		return out
	case reflect.Struct:
		out := make(map[string]interface{})
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" { // unexported
				continue
			}
			name := field.Name
			if tag, ok := field.Tag.Lookup("json"); ok {
				if tag == "-" {
					continue
				}
				if comma := strings.IndexByte(tag, ','); comma >= 0 {
					tag = tag[:comma]
				}
				if tag != "" {
					name = tag
				}
			}
			out[name] = normalize(v.Field(i).Interface(), depth+1, seen)
		}
		return out
	case reflect.Invalid:
		return nil
	default:
		return fmt.Sprint(v.Interface())
	}
}

// cut stands in for a value the walk refuses to enter again, at a
// cycle or the depth bound. fmt itself recurses through
// self-referential containers, so those collapse to their type name
// instead of their printed form.
func cut(v interface{}) string {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Ptr, reflect.Struct:
		return fmt.Sprintf("%T", v)
	default:
		return fmt.Sprint(v)
	}
}

// FindField searches a normalized (or normalizable) structure for the
// first value stored under the given key, depth first. Providers nest
// the same logical field at different depths, so callers name the field
// and let the search walk maps and sequences. The second return is
// false when the field is absent.
func FindField(raw interface{}, name string) (interface{}, bool) {
	return findField(Normalize(raw), name, 0)
}

func findField(v interface{}, name string, depth int) (interface{}, bool) {
	if depth > maxNormalizeDepth {
		return nil, false
	}
	switch node := v.(type) {
	case map[string]interface{}:
		if value, ok := node[name]; ok {
			return value, true
		}
		// Sorted descent keeps "first match" deterministic across runs.
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if value, ok := findField(node[k], name, depth+1); ok {
				return value, true
			}
		}
	case []interface{}:
		for _, child := range node {
			if value, ok := findField(child, name, depth+1); ok {
				return value, true
			}
		}
	}
	return nil, false
}
