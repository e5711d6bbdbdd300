package rpcpool

import (
	"time"

	"github.com/homezloco/soleco-sub001/internal/backoff"
)

// PoolOption configures a Pool at construction.
type PoolOption func(*Pool)

// WithEndpoints adds candidate endpoints directly.
func WithEndpoints(eps ...Endpoint) PoolOption {
	return func(p *Pool) {
		for i := range eps {
			normalized, err := normalizeEndpointURL(eps[i].URL)
			if err != nil {
				p.validationErr = &Error{
					Kind:    KindConfiguration,
					Message: "invalid endpoint URL " + eps[i].URL,
					Cause:   err,
				}
				return
			}
			if isNonProduction(normalized) {
				p.validationErr = &Error{
					Kind:    KindConfiguration,
					Message: "non-production endpoint " + eps[i].URL,
					Cause:   ErrNonProductionEndpoint,
				}
				return
			}
			ep := eps[i]
			ep.URL = normalized
			p.endpoints = append(p.endpoints, &ep)
		}
	}
}

// WithRegistry seeds the pool from a registry's filtered listing.
func WithRegistry(r *Registry, filter RegistryFilter) PoolOption {
	return func(p *Pool) {
		for _, ep := range r.List(filter) {
			stored := ep
			p.endpoints = append(p.endpoints, &stored)
		}
	}
}

// WithScoreWeights overrides the selection weights.
func WithScoreWeights(w ScoreWeights) PoolOption {
	return func(p *Pool) {
		p.weights = w
	}
}

// WithCooldown sets the base and cap of the failure cooldown schedule.
func WithCooldown(base, max time.Duration) PoolOption {
	return func(p *Pool) {
		p.baseCooldown = base
		p.maxCooldown = max
	}
}

// WithMaxInFlight caps simultaneous calls per endpoint.
func WithMaxInFlight(n int) PoolOption {
	return func(p *Pool) {
		p.maxInFlight = int64(n)
	}
}

// WithSaturationWait bounds how long Acquire blocks on a saturated
// endpoint before giving up.
func WithSaturationWait(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.saturationWait = d
	}
}

// WithSSLVerify sets the pool-wide TLS verification flag; per-endpoint
// bypass flags still apply on top.
func WithSSLVerify(verify bool) PoolOption {
	return func(p *Pool) {
		p.sslVerify = verify
	}
}

// WithRateLimitBackoff sets the throttle backoff bounds applied per
// endpoint.
func WithRateLimitBackoff(base, max time.Duration) PoolOption {
	return func(p *Pool) {
		p.rateBase = base
		p.rateMax = max
	}
}

// WithPoolLogger attaches a logger to the pool.
func WithPoolLogger(l Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithPoolMetrics attaches a metrics collector to the pool.
func WithPoolMetrics(mc *MetricsCollector) PoolOption {
	return func(p *Pool) {
		p.metrics = mc
	}
}

// InvokerOption configures an Invoker at construction.
type InvokerOption func(*Invoker)

// WithTransport overrides the JSON-RPC transport.
func WithTransport(t *Transport) InvokerOption {
	return func(inv *Invoker) {
		inv.transport = t
	}
}

// WithDefaultTimeout sets the per-attempt timeout used when a call
// supplies none.
func WithDefaultTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		inv.timeout = d
	}
}

// WithMaxRetries sets the default retry budget per logical call.
func WithMaxRetries(n int) InvokerOption {
	return func(inv *Invoker) {
		inv.maxRetries = n
	}
}

// WithRetryBackoff sets the delay schedule bounds between attempts.
func WithRetryBackoff(initial, max time.Duration, multiplier, jitter float64) InvokerOption {
	return func(inv *Invoker) {
		inv.initialBackoff = initial
		inv.maxBackoff = max
		inv.backoffMultiplier = multiplier
		inv.jitter = jitter
	}
}

// WithBackoffStrategy swaps the delay schedule implementation.
func WithBackoffStrategy(s backoff.Strategy) InvokerOption {
	return func(inv *Invoker) {
		inv.strategy = s
	}
}

// WithCache attaches the fallback cache and the TTL written on refresh.
func WithCache(c Cache, ttl time.Duration) InvokerOption {
	return func(inv *Invoker) {
		inv.cache = c
		inv.cacheTTL = ttl
	}
}

// WithInvokerLogger attaches a logger to the invoker.
func WithInvokerLogger(l Logger) InvokerOption {
	return func(inv *Invoker) {
		inv.logger = l
	}
}

// WithInvokerMetrics attaches a metrics collector to the invoker.
func WithInvokerMetrics(mc *MetricsCollector) InvokerOption {
	return func(inv *Invoker) {
		inv.metrics = mc
	}
}

// WithRequestIDGenerator overrides how logical-call IDs are minted.
func WithRequestIDGenerator(gen func() string) InvokerOption {
	return func(inv *Invoker) {
		inv.requestIDGen = gen
	}
}

// callConfig is resolved per logical call from invoker defaults plus
// CallOptions.
type callConfig struct {
	timeout       time.Duration
	maxRetries    int
	cacheFallback bool
	cacheTTL      time.Duration
}

// CallOption tunes one logical call.
type CallOption func(*callConfig)

// WithCallTimeout overrides the per-attempt timeout for this call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.timeout = d
	}
}

// WithCallRetries overrides the retry budget for this call.
func WithCallRetries(n int) CallOption {
	return func(c *callConfig) {
		c.maxRetries = n
	}
}

// WithoutCacheFallback disables serving a stale snapshot on exhaustion
// for this call.
func WithoutCacheFallback() CallOption {
	return func(c *callConfig) {
		c.cacheFallback = false
	}
}

// WithCallCacheTTL overrides the TTL written on a successful refresh.
func WithCallCacheTTL(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.cacheTTL = d
	}
}
