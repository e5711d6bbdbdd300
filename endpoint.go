package rpcpool

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// EndpointClass records how an endpoint entered the registry.
type EndpointClass string

const (
	// ClassOfficial is an endpoint operated by the chain's foundation.
	ClassOfficial EndpointClass = "official"
	// ClassWellKnown is a curated public provider.
	ClassWellKnown EndpointClass = "well-known"
	// ClassAPIKeyed is a provider that requires an API key.
	ClassAPIKeyed EndpointClass = "api-keyed"
	// ClassDiscovered was learned at runtime (cluster gossip, config push).
	ClassDiscovered EndpointClass = "discovered"
)

// Outcome is the terminal state of one call attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeError
	// OutcomeCanceled marks an attempt abandoned because the caller's
	// context ended. The endpoint did nothing wrong, so canceled
	// attempts leave its record untouched.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "error"
	}
}

// Endpoint is one candidate JSON-RPC server plus its rolling
// performance record. The exported fields are plain configuration and
// copy freely; runtime state lives behind pointers the pool allocates,
// so registry and option plumbing can pass endpoints by value.
type Endpoint struct {
	URL                string
	Class              EndpointClass
	Official           bool
	RequiresAPIKey     bool
	APIKey             string
	InsecureSkipVerify bool

	sem    *semaphore.Weighted
	limits *RateLimitState
	health *endpointHealth
}

// endpointHealth holds the counters guarded by mu. The pool never
// holds the lock across a network call.
type endpointHealth struct {
	mu                  sync.Mutex
	successCount        uint64
	failureCount        uint64
	consecutiveFailures int
	avgLatency          time.Duration
	cooldownUntil       time.Time
	lastUsed            time.Time
}

// initRuntime allocates the endpoint's runtime state. Called once per
// endpoint at pool construction, before any concurrent use.
func (ep *Endpoint) initRuntime(maxInFlight int64, rateBase, rateMax time.Duration) {
	ep.sem = semaphore.NewWeighted(maxInFlight)
	ep.limits = NewRateLimitState(rateBase, rateMax)
	ep.health = &endpointHealth{}
}

// EndpointStats is a point-in-time copy of an endpoint's counters.
type EndpointStats struct {
	URL                 string
	Class               EndpointClass
	SuccessCount        uint64
	FailureCount        uint64
	ConsecutiveFailures int
	AvgLatency          time.Duration
	CooldownUntil       time.Time
	InCooldown          bool
}

const latencyEMAAlpha = 0.3

// recordOutcome folds one attempt result into the endpoint's counters.
// Cooldown growth is exponential in the failure streak and capped; the
// schedule never moves backwards within a streak.
func (ep *Endpoint) recordOutcome(outcome Outcome, latency time.Duration, baseCooldown, maxCooldown time.Duration, now time.Time) {
	h := ep.health
	h.mu.Lock()
	defer h.mu.Unlock()

	if outcome == OutcomeSuccess {
		h.successCount++
		h.consecutiveFailures = 0
		if h.avgLatency == 0 {
			h.avgLatency = latency
		} else {
			h.avgLatency = time.Duration(float64(h.avgLatency)*(1-latencyEMAAlpha) + float64(latency)*latencyEMAAlpha)
		}
		return
	}

	h.failureCount++
	h.consecutiveFailures++

	cooldown := baseCooldown
	for i := 1; i < h.consecutiveFailures; i++ {
		cooldown *= 2
		if cooldown >= maxCooldown {
			cooldown = maxCooldown
			break
		}
	}
	until := now.Add(cooldown)
	if until.After(h.cooldownUntil) {
		h.cooldownUntil = until
	}
}

// score ranks the endpoint for selection. Higher is better. A fresh
// endpoint with no history scores as a perfect one.
func (ep *Endpoint) score(w ScoreWeights) float64 {
	h := ep.health
	h.mu.Lock()
	defer h.mu.Unlock()

	rate := 1.0
	if total := h.successCount + h.failureCount; total > 0 {
		rate = float64(h.successCount) / float64(total)
	}
	return w.SuccessRate*rate -
		w.Latency*h.avgLatency.Seconds() -
		w.ConsecutiveFailures*float64(h.consecutiveFailures)
}

func (ep *Endpoint) inCooldown(now time.Time) bool {
	h := ep.health
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cooldownUntil.After(now)
}

func (ep *Endpoint) cooldownExpiry() time.Time {
	h := ep.health
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cooldownUntil
}

func (ep *Endpoint) touch(now time.Time) {
	h := ep.health
	h.mu.Lock()
	h.lastUsed = now
	h.mu.Unlock()
}

func (ep *Endpoint) lastUsedAt() time.Time {
	h := ep.health
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastUsed
}

// Stats returns a copy of the endpoint's current counters.
func (ep *Endpoint) Stats() EndpointStats {
	h := ep.health
	h.mu.Lock()
	defer h.mu.Unlock()
	return EndpointStats{
		URL:                 ep.URL,
		Class:               ep.Class,
		SuccessCount:        h.successCount,
		FailureCount:        h.failureCount,
		ConsecutiveFailures: h.consecutiveFailures,
		AvgLatency:          h.avgLatency,
		CooldownUntil:       h.cooldownUntil,
		InCooldown:          h.cooldownUntil.After(time.Now()),
	}
}

// Host returns the endpoint's host for metric labels.
func (ep *Endpoint) Host() string {
	u, err := url.Parse(ep.URL)
	if err != nil || u.Host == "" {
		return ep.URL
	}
	return u.Host
}

// normalizeEndpointURL canonicalizes a URL for dedup: scheme and host
// lowercased, default ports and trailing slashes dropped.
func normalizeEndpointURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) ||
		(u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	return u.String(), nil
}

// nonProductionMarkers are URL substrings that identify cluster
// endpoints which must never serve mainnet analytics traffic.
var nonProductionMarkers = []string{"devnet", "testnet"}

func isNonProduction(normalizedURL string) bool {
	lower := strings.ToLower(normalizedURL)
	for _, marker := range nonProductionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
