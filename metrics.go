package rpcpool

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exports Prometheus metrics for the pool's call
// lifecycle and endpoint health. All Record* methods are safe on a nil
// receiver so metrics stay optional.
type MetricsCollector struct {
	callsTotal      *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	callsInFlight   *prometheus.GaugeVec

	retriesTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	cacheFallbacks *prometheus.CounterVec

	endpointScore    *prometheus.GaugeVec
	endpointCooldown *prometheus.GaugeVec
	probesTotal      *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the
// supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_calls_total",
				Help: "Logical RPC calls by method and final outcome",
			},
			[]string{"method", "outcome"},
		),
		attemptDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpcpool_attempt_duration_seconds",
				Help:    "Duration of individual call attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "outcome"},
		),
		callsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpcpool_calls_in_flight",
				Help: "Logical RPC calls currently executing",
			},
			[]string{"method"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_retries_total",
				Help: "Retry attempts by method and attempt number",
			},
			[]string{"method", "attempt"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_errors_total",
				Help: "Attempt failures by error kind",
			},
			[]string{"kind", "method", "endpoint"},
		),
		cacheFallbacks: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_cache_fallbacks_total",
				Help: "Calls resolved from cache after endpoint exhaustion",
			},
			[]string{"method", "result"},
		),
		endpointScore: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpcpool_endpoint_score",
				Help: "Current selection score per endpoint",
			},
			[]string{"endpoint"},
		),
		endpointCooldown: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpcpool_endpoint_cooldown",
				Help: "1 while the endpoint is excluded by cooldown",
			},
			[]string{"endpoint"},
		),
		probesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_health_probes_total",
				Help: "Health probe results per endpoint",
			},
			[]string{"endpoint", "outcome"},
		),
		registry: registry,
	}
}

// RecordCall records a finished logical call.
func (mc *MetricsCollector) RecordCall(method, outcome string) {
	if mc == nil {
		return
	}
	mc.callsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordAttempt records one attempt's duration and outcome.
func (mc *MetricsCollector) RecordAttempt(method, endpoint string, outcome Outcome, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.attemptDuration.WithLabelValues(method, endpoint, outcome.String()).Observe(duration.Seconds())
}

// RecordCallStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordCallStart(method string) {
	if mc == nil {
		return
	}
	mc.callsInFlight.WithLabelValues(method).Inc()
}

// RecordCallEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordCallEnd(method string) {
	if mc == nil {
		return
	}
	mc.callsInFlight.WithLabelValues(method).Dec()
}

// RecordRetry increments the retry counter for an attempt number.
func (mc *MetricsCollector) RecordRetry(method string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, strconv.Itoa(attempt)).Inc()
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(string(kind), method, endpoint).Inc()
}

// RecordCacheFallback records an exhaustion fallback, result is
// "degraded" or "miss".
func (mc *MetricsCollector) RecordCacheFallback(method, result string) {
	if mc == nil {
		return
	}
	mc.cacheFallbacks.WithLabelValues(method, result).Inc()
}

// RecordEndpointScore publishes the current selection score.
func (mc *MetricsCollector) RecordEndpointScore(endpoint string, score float64) {
	if mc == nil {
		return
	}
	mc.endpointScore.WithLabelValues(endpoint).Set(score)
}

// RecordEndpointCooldown publishes cooldown state as 0/1.
func (mc *MetricsCollector) RecordEndpointCooldown(endpoint string, cooling bool) {
	if mc == nil {
		return
	}
	v := 0.0
	if cooling {
		v = 1.0
	}
	mc.endpointCooldown.WithLabelValues(endpoint).Set(v)
}

// RecordProbe counts a health probe result.
func (mc *MetricsCollector) RecordProbe(endpoint string, outcome Outcome) {
	if mc == nil {
		return
	}
	mc.probesTotal.WithLabelValues(endpoint, outcome.String()).Inc()
}
