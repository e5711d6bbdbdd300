package rpcpool

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/homezloco/soleco-sub001/internal/backoff"
)

// Rate-limit headers seen across Solana RPC providers. The public
// cluster entrypoint advertises method-scoped limits alongside the
// connection-wide ones.
const (
	headerLimit           = "X-Ratelimit-Limit"
	headerRemaining       = "X-Ratelimit-Remaining"
	headerMethodLimit     = "X-Ratelimit-Method-Limit"
	headerMethodRemaining = "X-Ratelimit-Method-Remaining"
	headerRetryAfter      = "Retry-After"
)

// rateWindow is assumed when a provider advertises counts without a
// reset time; public Solana limits are quoted per second.
const rateWindow = time.Second

type methodLimit struct {
	limit     int
	remaining int
	updatedAt time.Time
}

// RateLimitState tracks provider-advertised limits for one endpoint
// and drives its throttle gate. Safe for concurrent use.
type RateLimitState struct {
	mu              sync.Mutex
	globalLimit     int
	globalRemaining int
	updatedAt       time.Time
	perMethod       map[string]*methodLimit
	retryAfterUntil time.Time
	throttleHits    int

	base     time.Duration
	max      time.Duration
	strategy backoff.Strategy
}

// NewRateLimitState builds throttle state with the given backoff bounds.
func NewRateLimitState(base, max time.Duration) *RateLimitState {
	return &RateLimitState{
		perMethod: make(map[string]*methodLimit),
		base:      base,
		max:       max,
		strategy:  backoff.Exponential{},
	}
}

// UpdateFromHeaders folds a provider response's rate-limit headers into
// the state. Missing headers leave existing state untouched.
func (rl *RateLimitState) UpdateFromHeaders(h http.Header, method string, now time.Time) {
	if h == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := parseIntHeader(h, headerLimit); ok {
		rl.globalLimit = v
		rl.updatedAt = now
	}
	if v, ok := parseIntHeader(h, headerRemaining); ok {
		rl.globalRemaining = v
		rl.updatedAt = now
	}
	if method != "" {
		ml := rl.perMethod[method]
		if v, ok := parseIntHeader(h, headerMethodLimit); ok {
			if ml == nil {
				ml = &methodLimit{}
				rl.perMethod[method] = ml
			}
			ml.limit = v
			ml.updatedAt = now
		}
		if v, ok := parseIntHeader(h, headerMethodRemaining); ok {
			if ml == nil {
				ml = &methodLimit{}
				rl.perMethod[method] = ml
			}
			ml.remaining = v
			ml.updatedAt = now
		}
	}
	if d := parseRetryAfter(h.Get(headerRetryAfter)); d > 0 {
		until := now.Add(d)
		if until.After(rl.retryAfterUntil) {
			rl.retryAfterUntil = until
		}
	}
}

// RecordThrottle notes an explicit 429 so backoff grows across a
// throttling streak.
func (rl *RateLimitState) RecordThrottle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.throttleHits++
	if rl.retryAfterUntil.Before(now) {
		rl.retryAfterUntil = now.Add(rl.delayLocked())
	}
}

// RecordSuccess clears the throttling streak.
func (rl *RateLimitState) RecordSuccess() {
	rl.mu.Lock()
	rl.throttleHits = 0
	rl.mu.Unlock()
}

// ShouldThrottle reports whether the endpoint must not be used right
// now: a Retry-After window is open, or an advertised remaining count
// reached zero within the current window.
func (rl *RateLimitState) ShouldThrottle(method string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.retryAfterUntil.After(now) {
		return true
	}
	if rl.globalLimit > 0 && rl.globalRemaining <= 0 && now.Sub(rl.updatedAt) < rateWindow {
		return true
	}
	if ml := rl.perMethod[method]; ml != nil {
		if ml.limit > 0 && ml.remaining <= 0 && now.Sub(ml.updatedAt) < rateWindow {
			return true
		}
	}
	return false
}

// BackoffDuration returns how long a caller should wait before touching
// this endpoint again: the provider's Retry-After when one is open,
// otherwise exponential jitter over the throttling streak.
func (rl *RateLimitState) BackoffDuration(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.retryAfterUntil.After(now) {
		return rl.retryAfterUntil.Sub(now)
	}
	return rl.delayLocked()
}

func (rl *RateLimitState) delayLocked() time.Duration {
	attempt := rl.throttleHits - 1
	if attempt < 0 {
		attempt = 0
	}
	return rl.strategy.Delay(attempt, rl.base, rl.max, 2.0, 0.2)
}

// Snapshot returns the advertised global limit/remaining pair.
func (rl *RateLimitState) Snapshot() (limit, remaining int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.globalLimit, rl.globalRemaining
}

func parseIntHeader(h http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseRetryAfter supports both delay-seconds and HTTP-date forms,
// capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		d := time.Duration(seconds) * time.Second
		if d > time.Hour {
			d = time.Hour
		}
		return d
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return 0
		}
		if d > time.Hour {
			d = time.Hour
		}
		return d
	}
	return 0
}
