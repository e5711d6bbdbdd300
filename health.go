package rpcpool

import (
	"context"
	"sync"
	"time"
)

// probeMethod is the cheap liveness call. getHealth answers "ok" or an
// unhealthy error carrying how far behind the node is.
const probeMethod = "getHealth"

// HealthMonitor re-scores every endpoint on a schedule by running a
// lightweight probe through the same Observe path as production
// traffic, so probe results and real calls share one scoring model.
// Probes bypass the pool's concurrency slots and therefore can never
// starve foreground acquires.
type HealthMonitor struct {
	pool      *Pool
	transport *Transport
	interval  time.Duration
	timeout   time.Duration
	logger    Logger
	metrics   *MetricsCollector
}

// ProbeResult is one endpoint's probe outcome, for diagnostics output.
type ProbeResult struct {
	Endpoint string
	Outcome  Outcome
	Latency  time.Duration
	Err      error
}

// HealthMonitorOption configures a HealthMonitor.
type HealthMonitorOption func(*HealthMonitor)

// WithProbeInterval sets the daemon-mode probe cadence.
func WithProbeInterval(d time.Duration) HealthMonitorOption {
	return func(hm *HealthMonitor) {
		hm.interval = d
	}
}

// WithProbeTimeout bounds a single probe call.
func WithProbeTimeout(d time.Duration) HealthMonitorOption {
	return func(hm *HealthMonitor) {
		hm.timeout = d
	}
}

// WithHealthLogger attaches a logger.
func WithHealthLogger(l Logger) HealthMonitorOption {
	return func(hm *HealthMonitor) {
		hm.logger = l
	}
}

// WithHealthMetrics attaches a metrics collector.
func WithHealthMetrics(mc *MetricsCollector) HealthMonitorOption {
	return func(hm *HealthMonitor) {
		hm.metrics = mc
	}
}

// NewHealthMonitor builds a monitor over the pool. Defaults: 2 minute
// interval, 10 second probe timeout.
func NewHealthMonitor(pool *Pool, options ...HealthMonitorOption) *HealthMonitor {
	hm := &HealthMonitor{
		pool:     pool,
		interval: 2 * time.Minute,
		timeout:  10 * time.Second,
	}
	for _, option := range options {
		option(hm)
	}
	if hm.transport == nil {
		hm.transport = NewTransport(hm.timeout, pool.SSLVerify())
	}
	return hm
}

// RunOnce probes every endpoint concurrently and returns the results
// in pool order. Used by manual diagnostics.
func (hm *HealthMonitor) RunOnce(ctx context.Context) []ProbeResult {
	endpoints := hm.pool.Endpoints()
	results := make([]ProbeResult, len(endpoints))

	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep *Endpoint) {
			defer wg.Done()
			results[i] = hm.probe(ctx, ep)
		}(i, ep)
	}
	wg.Wait()
	return results
}

// Run probes on the configured interval until the context is
// cancelled. An immediate sweep runs first so a freshly started pool
// is not scored blind for a whole interval.
func (hm *HealthMonitor) Run(ctx context.Context) {
	hm.RunOnce(ctx)

	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if hm.logger != nil {
				hm.logger.Info("health monitor stopped", "reason", ctx.Err())
			}
			return
		case <-ticker.C:
			hm.RunOnce(ctx)
		}
	}
}

func (hm *HealthMonitor) probe(ctx context.Context, ep *Endpoint) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	start := time.Now()
	_, headers, err := hm.transport.Call(probeCtx, ep, probeMethod, nil)
	latency := time.Since(start)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
		switch {
		case ctx.Err() != nil:
			outcome = OutcomeCanceled
		case classify(err) == KindTimeout:
			outcome = OutcomeTimeout
		}
	}

	hm.pool.Observe(ep, AttemptResult{
		Method:  probeMethod,
		Outcome: outcome,
		Latency: latency,
		Headers: headers,
		Err:     err,
	})
	hm.metrics.RecordProbe(ep.Host(), outcome)

	if hm.logger != nil && err != nil {
		hm.logger.Debug("health probe failed",
			"endpoint", ep.Host(),
			"kind", string(classify(err)),
			"latency", latency)
	}
	return ProbeResult{Endpoint: ep.Host(), Outcome: outcome, Latency: latency, Err: err}
}
