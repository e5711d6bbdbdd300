package rpcpool

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// ScoreWeights tune endpoint selection. Latency weight applies to the
// EMA expressed in seconds.
type ScoreWeights struct {
	SuccessRate         float64
	Latency             float64
	ConsecutiveFailures float64
}

// DefaultScoreWeights favor success rate, then latency, then streaks.
var DefaultScoreWeights = ScoreWeights{
	SuccessRate:         1.0,
	Latency:             0.5,
	ConsecutiveFailures: 0.2,
}

// Pool selects among candidate endpoints under concurrent load,
// excluding cooled-down and throttled ones and spreading traffic across
// equally good candidates. One long-lived Pool is shared by every
// logical call; all endpoint mutation is per-endpoint, never global.
type Pool struct {
	endpoints []*Endpoint

	weights        ScoreWeights
	baseCooldown   time.Duration
	maxCooldown    time.Duration
	maxInFlight    int64
	saturationWait time.Duration
	sslVerify      bool
	rateBase       time.Duration
	rateMax        time.Duration

	logger  Logger
	metrics *MetricsCollector

	validationErr error
}

// AttemptResult carries everything Release needs to fold one attempt
// back into endpoint state.
type AttemptResult struct {
	Method  string
	Outcome Outcome
	Latency time.Duration
	Headers http.Header
	Err     error
}

// New constructs a pool from the provided options. A pool with zero
// endpoints is a deployment defect: New fails immediately with a
// Configuration error rather than yielding a silently empty pool.
func New(options ...PoolOption) (*Pool, error) {
	p := &Pool{
		weights:        DefaultScoreWeights,
		baseCooldown:   2 * time.Second,
		maxCooldown:    5 * time.Minute,
		maxInFlight:    8,
		saturationWait: 500 * time.Millisecond,
		sslVerify:      true,
		rateBase:       250 * time.Millisecond,
		rateMax:        30 * time.Second,
	}
	for _, option := range options {
		option(p)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	for _, ep := range p.endpoints {
		ep.initRuntime(p.maxInFlight, p.rateBase, p.rateMax)
	}
	return p, nil
}

func (p *Pool) validate() error {
	if p.validationErr != nil {
		return p.validationErr
	}
	if len(p.endpoints) == 0 {
		return &Error{
			Kind:      KindConfiguration,
			Message:   "pool constructed with zero endpoints",
			Cause:     ErrNoEndpoints,
			Timestamp: time.Now(),
		}
	}
	if p.maxInFlight <= 0 {
		return &Error{Kind: KindConfiguration, Message: "maxInFlight must be positive", Timestamp: time.Now()}
	}
	if p.baseCooldown <= 0 || p.maxCooldown < p.baseCooldown {
		return &Error{Kind: KindConfiguration, Message: "cooldown bounds invalid", Timestamp: time.Now()}
	}
	return nil
}

// Acquire picks the best eligible endpoint for the method and claims
// one in-flight slot on it. Eligible means not cooled down, not
// throttled, and under its concurrency cap; ties on score break toward
// the least recently used endpoint. When the best choice is saturated,
// Acquire falls through to the next-best scorer, then blocks briefly on
// the top scorer rather than queuing indefinitely. When every endpoint
// is cooled down it returns the one whose cooldown expires soonest —
// the pool degrades, it does not go dark.
func (p *Pool) Acquire(ctx context.Context, method string) (*Endpoint, error) {
	return p.AcquireExcluding(ctx, method, nil)
}

// AcquireExcluding behaves like Acquire but skips endpoints whose URL
// is in exclude. The invoker uses it so one logical call never retries
// an endpoint that already failed it, as long as an untried endpoint
// remains. When exclusion empties the field the usual degraded path
// runs over the full set.
func (p *Pool) AcquireExcluding(ctx context.Context, method string, exclude map[string]bool) (*Endpoint, error) {
	now := time.Now()

	eligible := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if exclude[ep.URL] {
			continue
		}
		if ep.inCooldown(now) {
			p.metrics.RecordEndpointCooldown(ep.Host(), true)
			continue
		}
		p.metrics.RecordEndpointCooldown(ep.Host(), false)
		if ep.limits.ShouldThrottle(method, now) {
			continue
		}
		eligible = append(eligible, ep)
	}

	if len(eligible) == 0 {
		return p.acquireCooledDown(ctx, method, now)
	}

	p.rank(eligible)

	for _, ep := range eligible {
		if ep.sem.TryAcquire(1) {
			ep.touch(now)
			return ep, nil
		}
	}

	// Everything eligible is saturated; wait briefly on the best one.
	best := eligible[0]
	waitCtx, cancel := context.WithTimeout(ctx, p.saturationWait)
	defer cancel()
	if err := best.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{
			Kind:      KindRPC,
			Message:   "all eligible endpoints saturated",
			Method:    method,
			Timestamp: time.Now(),
		}
	}
	best.touch(time.Now())
	return best, nil
}

// acquireCooledDown handles the degraded path: every endpoint is in
// cooldown or throttled, so hand back the soonest-to-recover one.
func (p *Pool) acquireCooledDown(ctx context.Context, method string, now time.Time) (*Endpoint, error) {
	var soonest *Endpoint
	for _, ep := range p.endpoints {
		if soonest == nil || ep.cooldownExpiry().Before(soonest.cooldownExpiry()) {
			soonest = ep
		}
	}

	if p.logger != nil {
		p.logger.Warn("all endpoints cooled down, degrading to soonest expiry",
			"method", method,
			"endpoint", soonest.Host(),
			"expiry", soonest.cooldownExpiry())
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.saturationWait)
	defer cancel()
	if err := soonest.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{
			Kind:      KindRPC,
			Message:   "degraded endpoint saturated",
			Method:    method,
			Endpoint:  soonest.Host(),
			Timestamp: time.Now(),
		}
	}
	soonest.touch(now)
	return soonest, nil
}

// rank orders endpoints best-first: score descending, then least
// recently used first so equal endpoints share load.
func (p *Pool) rank(eps []*Endpoint) {
	type ranked struct {
		ep    *Endpoint
		score float64
		used  time.Time
	}
	rs := make([]ranked, len(eps))
	for i, ep := range eps {
		score := ep.score(p.weights)
		p.metrics.RecordEndpointScore(ep.Host(), score)
		rs[i] = ranked{ep: ep, score: score, used: ep.lastUsedAt()}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score > rs[j].score
		}
		return rs[i].used.Before(rs[j].used)
	})
	for i := range rs {
		eps[i] = rs[i].ep
	}
}

// Release returns the endpoint's in-flight slot and folds the attempt
// into its stats. Must be called exactly once per successful Acquire.
func (p *Pool) Release(ep *Endpoint, res AttemptResult) {
	ep.sem.Release(1)
	p.Observe(ep, res)
}

// Observe updates endpoint stats without touching the concurrency
// slot. The health monitor reports probe results through here so probe
// traffic and production traffic share one scoring model while probes
// never consume pool capacity.
func (p *Pool) Observe(ep *Endpoint, res AttemptResult) {
	now := time.Now()

	ep.limits.UpdateFromHeaders(res.Headers, res.Method, now)
	if res.Outcome == OutcomeCanceled {
		// Caller walked away mid-attempt; scoring a failure here would
		// cool down endpoints that never misbehaved.
		p.metrics.RecordAttempt(res.Method, ep.Host(), res.Outcome, res.Latency)
		return
	}
	if res.Outcome == OutcomeSuccess {
		ep.limits.RecordSuccess()
	} else if classify(res.Err) == KindRateLimit {
		ep.limits.RecordThrottle(now)
	}

	ep.recordOutcome(res.Outcome, res.Latency, p.baseCooldown, p.maxCooldown, now)

	p.metrics.RecordAttempt(res.Method, ep.Host(), res.Outcome, res.Latency)
	if res.Outcome != OutcomeSuccess {
		p.metrics.RecordError(classify(res.Err), res.Method, ep.Host())
		p.metrics.RecordEndpointCooldown(ep.Host(), ep.inCooldown(now))
		if p.logger != nil {
			p.logger.Debug("endpoint attempt failed",
				"endpoint", ep.Host(),
				"method", res.Method,
				"outcome", res.Outcome.String(),
				"latency", res.Latency,
				"error", res.Err)
		}
	}
}

// Endpoints returns the pool's endpoints; the health monitor iterates
// them directly.
func (p *Pool) Endpoints() []*Endpoint {
	return p.endpoints
}

// Stats returns a snapshot of every endpoint's counters.
func (p *Pool) Stats() []EndpointStats {
	out := make([]EndpointStats, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = ep.Stats()
	}
	return out
}

// SSLVerify reports the pool-wide TLS verification setting, consumed by
// the transport.
func (p *Pool) SSLVerify() bool {
	return p.sslVerify
}
