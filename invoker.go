package rpcpool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/homezloco/soleco-sub001/internal/backoff"
)

// Producer builds and executes exactly one in-flight request against
// the given endpoint. The invoker calls the producer afresh for every
// attempt, so a single outstanding computation is never consumed twice;
// the attempt's context is cancelled before the next attempt starts.
type Producer func(ctx context.Context, ep *Endpoint) (json.RawMessage, http.Header, error)

// Result is the normalized outcome of a logical call. Degraded marks a
// value served from cache after live retrieval failed; Raw keeps the
// undecoded payload for shapes the caller wants to inspect with
// FindField.
type Result struct {
	Value     interface{}
	Raw       json.RawMessage
	Degraded  bool
	StaleBy   time.Duration
	Endpoint  string
	Attempts  int
	RequestID string
}

// Invoker orchestrates one logical call: endpoint selection, timeout,
// retry across endpoints, error classification, and cache fallback on
// exhaustion. A single Invoker is shared by all callers.
type Invoker struct {
	pool      *Pool
	transport *Transport

	timeout           time.Duration
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	strategy          backoff.Strategy

	cache    Cache
	cacheTTL time.Duration

	logger       Logger
	metrics      *MetricsCollector
	requestIDGen func() string
}

// NewInvoker builds an invoker over the pool. Defaults: 30s attempt
// timeout, 3 retries, exponential jitter backoff, no cache.
func NewInvoker(pool *Pool, options ...InvokerOption) *Invoker {
	inv := &Invoker{
		pool:              pool,
		timeout:           30 * time.Second,
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.2,
		strategy:          backoff.Exponential{},
		requestIDGen:      uuid.NewString,
	}
	for _, option := range options {
		option(inv)
	}
	if inv.transport == nil {
		inv.transport = NewTransport(inv.timeout, pool.SSLVerify())
	}
	return inv
}

// Call invokes a JSON-RPC method with the default transport producer
// and caches successful results under the method+params fingerprint.
func (inv *Invoker) Call(ctx context.Context, method string, params interface{}, options ...CallOption) (*Result, error) {
	producer := func(ctx context.Context, ep *Endpoint) (json.RawMessage, http.Header, error) {
		return inv.transport.Call(ctx, ep, method, params)
	}
	return inv.CallWith(ctx, method, CacheKey(method, params), producer, options...)
}

// CallWith runs the full retry orchestration with a caller-supplied
// producer. cacheKey may be empty to opt out of cache refresh/fallback.
//
// One logical call walks REQUESTED -> ENDPOINT_SELECTED -> IN_FLIGHT
// and ends in SUCCESS, or loops back through ENDPOINT_SELECTED while
// retries remain; exhaustion resolves from cache when an acceptable
// snapshot exists, otherwise the last classified error propagates.
func (inv *Invoker) CallWith(ctx context.Context, method, cacheKey string, producer Producer, options ...CallOption) (*Result, error) {
	cfg := callConfig{
		timeout:       inv.timeout,
		maxRetries:    inv.maxRetries,
		cacheFallback: inv.cache != nil,
		cacheTTL:      inv.cacheTTL,
	}
	for _, option := range options {
		option(&cfg)
	}

	requestID := inv.requestIDGen()
	inv.metrics.RecordCallStart(method)
	defer inv.metrics.RecordCallEnd(method)

	tried := make(map[string]bool)
	var lastErr error

	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if attempt > 0 {
			inv.metrics.RecordRetry(method, attempt)
			if !inv.sleep(ctx, inv.retryDelay(attempt-1, lastErr)) {
				lastErr = ctx.Err()
				break
			}
		}

		ep, err := inv.pool.AcquireExcluding(ctx, method, tried)
		if err != nil {
			lastErr = err
			var typed *Error
			if errors.As(err, &typed) && !typed.Retryable() {
				break
			}
			continue
		}
		tried[ep.URL] = true

		raw, outcome, headers, attemptErr := inv.attempt(ctx, ep, cfg.timeout, producer)
		inv.pool.Release(ep, AttemptResult{
			Method:  method,
			Outcome: outcome,
			Latency: attemptErr.latency,
			Headers: headers,
			Err:     attemptErr.err,
		})

		if outcome == OutcomeSuccess {
			if inv.cache != nil && cacheKey != "" {
				inv.cache.Set(cacheKey, raw, cfg.cacheTTL)
			}
			inv.metrics.RecordCall(method, "success")
			if inv.logger != nil {
				inv.logger.Debug("call succeeded",
					"requestID", requestID,
					"method", method,
					"endpoint", ep.Host(),
					"attempts", attempt+1,
					"latency", attemptErr.latency)
			}
			return &Result{
				Value:     Normalize(raw),
				Raw:       raw,
				Endpoint:  ep.Host(),
				Attempts:  attempt + 1,
				RequestID: requestID,
			}, nil
		}

		lastErr = attemptErr.err
		if outcome == OutcomeCanceled {
			break
		}
		kind := classify(lastErr)
		if !kind.Retryable() {
			break
		}
		if inv.logger != nil {
			inv.logger.Info("attempt failed, rotating endpoint",
				"requestID", requestID,
				"method", method,
				"endpoint", ep.Host(),
				"kind", string(kind),
				"attempt", attempt+1,
				"maxRetries", cfg.maxRetries)
		}
	}

	// Retries exhausted (or a terminal error): try the stale snapshot.
	// A cancelled caller gets the error, not a late degraded success.
	if ctx.Err() == nil && cfg.cacheFallback && inv.cache != nil && cacheKey != "" {
		if result, ok := inv.fallback(method, cacheKey, requestID, cfg.maxRetries); ok {
			return result, nil
		}
	}

	inv.metrics.RecordCall(method, "failure")
	return nil, inv.finalError(method, requestID, cfg.maxRetries, lastErr)
}

type attemptOutcome struct {
	err     error
	latency time.Duration
}

// attempt runs one producer invocation bounded by timeout. The attempt
// context is cancelled before returning so no background work outlives
// the attempt.
func (inv *Invoker) attempt(ctx context.Context, ep *Endpoint, timeout time.Duration, producer Producer) (json.RawMessage, Outcome, http.Header, attemptOutcome) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, headers, err := producer(attemptCtx, ep)
	latency := time.Since(start)

	if err == nil {
		return raw, OutcomeSuccess, headers, attemptOutcome{latency: latency}
	}

	outcome := OutcomeError
	switch {
	case ctx.Err() != nil:
		// The caller's own context ended, not the attempt's deadline;
		// the endpoint is not at fault.
		outcome = OutcomeCanceled
	case classify(err) == KindTimeout || attemptCtx.Err() == context.DeadlineExceeded:
		outcome = OutcomeTimeout
	}
	return nil, outcome, headers, attemptOutcome{err: err, latency: latency}
}

// retryDelay picks the wait before the next attempt. Rate-limit
// failures must honor the provider's backoff even when the schedule
// says less.
func (inv *Invoker) retryDelay(attempt int, lastErr error) time.Duration {
	delay := inv.strategy.Delay(attempt, inv.initialBackoff, inv.maxBackoff, inv.backoffMultiplier, inv.jitter)

	var typed *Error
	if errors.As(lastErr, &typed) && typed.Kind == KindRateLimit && delay < inv.initialBackoff {
		delay = inv.initialBackoff
	}
	return delay
}

// sleep waits for d unless the call's context ends first.
func (inv *Invoker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// fallback serves the most recent cache entry when it is inside the
// staleness bound (staleFallbackFactor times its TTL).
func (inv *Invoker) fallback(method, cacheKey, requestID string, maxRetries int) (*Result, bool) {
	entry, ok := inv.cache.Get(cacheKey)
	if !ok {
		inv.metrics.RecordCacheFallback(method, "miss")
		return nil, false
	}
	now := time.Now()
	if entry.Age(now) > entry.TTL*staleFallbackFactor {
		inv.metrics.RecordCacheFallback(method, "miss")
		return nil, false
	}

	staleBy := entry.Age(now) - entry.TTL
	if staleBy < 0 {
		staleBy = 0
	}
	inv.metrics.RecordCacheFallback(method, "degraded")
	inv.metrics.RecordCall(method, "degraded")
	if inv.logger != nil {
		inv.logger.Warn("serving degraded result from cache",
			"requestID", requestID,
			"method", method,
			"age", entry.Age(now),
			"staleBy", staleBy)
	}
	return &Result{
		Value:     Normalize(entry.Value),
		Raw:       entry.Value,
		Degraded:  true,
		StaleBy:   staleBy,
		Attempts:  maxRetries + 1,
		RequestID: requestID,
	}, true
}

// finalError shapes the propagated error, preserving the classified
// kind and annotating the logical call's identity.
func (inv *Invoker) finalError(method, requestID string, maxRetries int, lastErr error) error {
	var typed *Error
	if errors.As(lastErr, &typed) {
		annotated := *typed
		annotated.RequestID = requestID
		annotated.MaxRetries = maxRetries
		if annotated.Method == "" {
			annotated.Method = method
		}
		return &annotated
	}
	kind := classify(lastErr)
	if kind == "" {
		kind = KindRPC
	}
	return &Error{
		Kind:       kind,
		Message:    "call failed after exhausting endpoints",
		Cause:      lastErr,
		RequestID:  requestID,
		Method:     method,
		MaxRetries: maxRetries,
		Timestamp:  time.Now(),
	}
}
