package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind classifies a call failure into the retry taxonomy.
type ErrorKind string

const (
	// KindRateLimit means the provider signaled throttling (HTTP 429 or
	// an advertised limit hit zero). Retryable after a mandatory backoff.
	KindRateLimit ErrorKind = "RateLimit"

	// KindNodeBehind means the endpoint's view of the chain lags.
	// Retryable on a different endpoint.
	KindNodeBehind ErrorKind = "NodeBehind"

	// KindNodeUnhealthy means the endpoint failed a liveness signal.
	// Retryable on a different endpoint.
	KindNodeUnhealthy ErrorKind = "NodeUnhealthy"

	// KindMissingBlocks means the requested data has been pruned or is
	// unavailable on this node. Retryable on a different endpoint.
	KindMissingBlocks ErrorKind = "MissingBlocks"

	// KindSlotSkipped means the requested slot has no block.
	// Retryable on a different endpoint.
	KindSlotSkipped ErrorKind = "SlotSkipped"

	// KindRPC is an unclassified provider error. Retryable within the
	// normal budget.
	KindRPC ErrorKind = "RPC"

	// KindTimeout means no response arrived within the deadline.
	// Retryable, then eligible for cache fallback.
	KindTimeout ErrorKind = "Timeout"

	// KindConfiguration is a deployment defect (e.g. zero endpoints).
	// Never retried.
	KindConfiguration ErrorKind = "Configuration"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrNoEndpoints is returned when a pool is constructed with zero endpoints.
	ErrNoEndpoints = errors.New("rpcpool: no endpoints configured")

	// ErrNonProductionEndpoint is returned when a devnet/testnet URL is
	// offered to the registry.
	ErrNonProductionEndpoint = errors.New("rpcpool: non-production endpoint rejected")

	// ErrStaleCache is returned when exhaustion fallback found only an
	// entry past the allowed staleness bound.
	ErrStaleCache = errors.New("rpcpool: cache entry too stale to serve")
)

// Retryable reports whether a failure of the given kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k != KindConfiguration
}

// Error is the typed error surfaced by the pool and invoker. It carries
// enough context to reconstruct which attempt of which logical call
// failed and why.
type Error struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	RequestID  string
	Method     string
	Endpoint   string
	RPCCode    int
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the error may be retried on another endpoint.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind.Retryable()
}

// Solana JSON-RPC server error codes, as emitted by the reference
// validator implementation.
const (
	rpcCodeBlockCleanedUp           = -32001
	rpcCodeBlockNotAvailable        = -32004
	rpcCodeNodeUnhealthy            = -32005
	rpcCodeSlotSkipped              = -32007
	rpcCodeLongTermStorageSlot      = -32009
	rpcCodeBlockStatusNotAvailable  = -32014
	rpcCodeMinContextSlotNotReached = -32016
)

// classifyRPCCode maps a provider error code (with its message) to a kind.
func classifyRPCCode(code int, message string) ErrorKind {
	switch code {
	case rpcCodeNodeUnhealthy:
		// The unhealthy payload distinguishes "behind by N slots" from a
		// hard liveness failure only in its message.
		if strings.Contains(strings.ToLower(message), "behind") {
			return KindNodeBehind
		}
		return KindNodeUnhealthy
	case rpcCodeBlockCleanedUp, rpcCodeBlockNotAvailable, rpcCodeBlockStatusNotAvailable:
		return KindMissingBlocks
	case rpcCodeSlotSkipped, rpcCodeLongTermStorageSlot:
		return KindSlotSkipped
	case rpcCodeMinContextSlotNotReached:
		return KindNodeBehind
	default:
		return KindRPC
	}
}

// classify maps an arbitrary attempt failure into the taxonomy. Typed
// *Error values pass through unchanged; everything else defaults to the
// generic retryable kind.
func classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindRPC
}
