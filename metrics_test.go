package rpcpool

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var mc *MetricsCollector
	mc.RecordCall("getSlot", "success")
	mc.RecordAttempt("getSlot", "a.example.com", OutcomeSuccess, time.Millisecond)
	mc.RecordCallStart("getSlot")
	mc.RecordCallEnd("getSlot")
	mc.RecordRetry("getSlot", 1)
	mc.RecordError(KindRateLimit, "getSlot", "a.example.com")
	mc.RecordCacheFallback("getSlot", "degraded")
	mc.RecordEndpointScore("a.example.com", 0.9)
	mc.RecordEndpointCooldown("a.example.com", true)
	mc.RecordProbe("a.example.com", OutcomeError)
}

func TestMetricsRecordCall(t *testing.T) {
	mc := newTestMetrics()
	mc.RecordCall("getSlot", "success")
	mc.RecordCall("getSlot", "success")
	mc.RecordCall("getSlot", "failure")

	if got := testutil.ToFloat64(mc.callsTotal.WithLabelValues("getSlot", "success")); got != 2 {
		t.Errorf("calls success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.callsTotal.WithLabelValues("getSlot", "failure")); got != 1 {
		t.Errorf("calls failure = %v, want 1", got)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	mc := newTestMetrics()
	mc.RecordCallStart("getVoteAccounts")
	mc.RecordCallStart("getVoteAccounts")
	mc.RecordCallEnd("getVoteAccounts")

	if got := testutil.ToFloat64(mc.callsInFlight.WithLabelValues("getVoteAccounts")); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestMetricsErrorAndRetryCounters(t *testing.T) {
	mc := newTestMetrics()
	mc.RecordError(KindRateLimit, "getSlot", "a.example.com")
	mc.RecordError(KindRateLimit, "getSlot", "a.example.com")
	mc.RecordRetry("getSlot", 1)

	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(string(KindRateLimit), "getSlot", "a.example.com")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("getSlot", "1")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestMetricsEndpointGauges(t *testing.T) {
	mc := newTestMetrics()
	mc.RecordEndpointScore("a.example.com", 0.75)
	mc.RecordEndpointCooldown("a.example.com", true)
	mc.RecordEndpointCooldown("b.example.com", false)

	if got := testutil.ToFloat64(mc.endpointScore.WithLabelValues("a.example.com")); got != 0.75 {
		t.Errorf("score = %v, want 0.75", got)
	}
	if got := testutil.ToFloat64(mc.endpointCooldown.WithLabelValues("a.example.com")); got != 1 {
		t.Errorf("cooldown a = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.endpointCooldown.WithLabelValues("b.example.com")); got != 0 {
		t.Errorf("cooldown b = %v, want 0", got)
	}
}

func TestMetricsProbeCounter(t *testing.T) {
	mc := newTestMetrics()
	mc.RecordProbe("a.example.com", OutcomeSuccess)
	mc.RecordProbe("a.example.com", OutcomeTimeout)
	mc.RecordProbe("a.example.com", OutcomeSuccess)

	if got := testutil.ToFloat64(mc.probesTotal.WithLabelValues("a.example.com", OutcomeSuccess.String())); got != 2 {
		t.Errorf("probe success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.probesTotal.WithLabelValues("a.example.com", OutcomeTimeout.String())); got != 1 {
		t.Errorf("probe timeout = %v, want 1", got)
	}
}

func TestMetricsCacheFallbackCounter(t *testing.T) {
	mc := newTestMetrics()
	mc.RecordCacheFallback("getEpochInfo", "degraded")
	mc.RecordCacheFallback("getEpochInfo", "miss")

	if got := testutil.ToFloat64(mc.cacheFallbacks.WithLabelValues("getEpochInfo", "degraded")); got != 1 {
		t.Errorf("fallback degraded = %v, want 1", got)
	}
}
