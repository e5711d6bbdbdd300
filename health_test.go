package rpcpool

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestHealthMonitorRunOnce(t *testing.T) {
	_, healthyEp := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1, "result": "ok",
		})
	})
	_, sickEp := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]interface{}{
				"code": -32005, "message": "Node is unhealthy",
			},
		})
	})

	pool, err := New(
		WithEndpoints(*healthyEp, *sickEp),
		WithCooldown(time.Second, time.Minute),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	hm := NewHealthMonitor(pool, WithProbeTimeout(2*time.Second))
	results := hm.RunOnce(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	byEndpoint := map[string]ProbeResult{}
	for _, pr := range results {
		byEndpoint[pr.Endpoint] = pr
	}
	if pr := byEndpoint[healthyEp.Host()]; pr.Outcome != OutcomeSuccess {
		t.Errorf("healthy endpoint outcome = %s", pr.Outcome)
	}
	if pr := byEndpoint[sickEp.Host()]; pr.Outcome != OutcomeError {
		t.Errorf("sick endpoint outcome = %s, err = %v", pr.Outcome, pr.Err)
	}

	// Probe results feed the same stats as production traffic.
	for _, stats := range pool.Stats() {
		switch stats.URL {
		case healthyEp.URL:
			if stats.SuccessCount != 1 || stats.FailureCount != 0 {
				t.Errorf("healthy stats = %+v", stats)
			}
		case sickEp.URL:
			if stats.FailureCount != 1 {
				t.Errorf("sick stats = %+v", stats)
			}
			if stats.CooldownUntil.IsZero() {
				t.Error("failed probe must start a cooldown")
			}
		}
	}
}

func TestHealthMonitorProbeDoesNotConsumeSlots(t *testing.T) {
	_, ep := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1, "result": "ok",
		})
	})

	pool, err := New(WithEndpoints(*ep), WithMaxInFlight(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	hm := NewHealthMonitor(pool, WithProbeTimeout(2*time.Second))
	for i := 0; i < 5; i++ {
		hm.RunOnce(context.Background())
	}

	// Every slot must still be available for foreground traffic.
	acquired, err := pool.Acquire(context.Background(), "getSlot")
	if err != nil {
		t.Fatalf("Acquire after probes failed: %v", err)
	}
	pool.Release(acquired, AttemptResult{Method: "getSlot", Outcome: OutcomeSuccess, Latency: time.Millisecond})
}

func TestHealthMonitorRunStopsOnCancel(t *testing.T) {
	_, ep := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1, "result": "ok",
		})
	})

	pool, err := New(WithEndpoints(*ep))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	hm := NewHealthMonitor(pool,
		WithProbeInterval(10*time.Millisecond),
		WithProbeTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hm.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	if pool.Stats()[0].SuccessCount == 0 {
		t.Error("daemon mode recorded no probe successes")
	}
}
