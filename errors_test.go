package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorFormat(t *testing.T) {
	err := &Error{
		Kind:       KindNodeBehind,
		Message:    "node is behind by 152 slots",
		RequestID:  "req-1",
		Attempt:    2,
		MaxRetries: 3,
	}

	msg := err.Error()
	if !strings.Contains(msg, "NodeBehind") {
		t.Errorf("missing kind in %q", msg)
	}
	if !strings.Contains(msg, "[req-1]") {
		t.Errorf("missing request id in %q", msg)
	}
	if !strings.Contains(msg, "attempt 2/3") {
		t.Errorf("missing attempt in %q", msg)
	}

	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Errorf("nil error string = %q", nilErr.Error())
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := &Error{Kind: KindTimeout, Message: "deadline"}
	if !errors.Is(err, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: KindRateLimit}) {
		t.Error("errors.Is must not match different kinds")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := &Error{Kind: KindRPC, Message: "attempt failed", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
}

func TestKindRetryable(t *testing.T) {
	retryable := []ErrorKind{
		KindRateLimit, KindNodeBehind, KindNodeUnhealthy,
		KindMissingBlocks, KindSlotSkipped, KindRPC, KindTimeout,
	}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	if KindConfiguration.Retryable() {
		t.Error("Configuration must never be retryable")
	}
}

func TestClassifyRPCCode(t *testing.T) {
	cases := []struct {
		code    int
		message string
		want    ErrorKind
	}{
		{-32005, "Node is unhealthy", KindNodeUnhealthy},
		{-32005, "Node is behind by 120 slots", KindNodeBehind},
		{-32001, "Block 1234 cleaned up", KindMissingBlocks},
		{-32004, "Block not available for slot 5", KindMissingBlocks},
		{-32007, "Slot 9 was skipped", KindSlotSkipped},
		{-32009, "Slot 9 was skipped in long-term storage", KindSlotSkipped},
		{-32016, "Minimum context slot has not been reached", KindNodeBehind},
		{-32602, "Invalid params", KindRPC},
	}

	for _, tc := range cases {
		if got := classifyRPCCode(tc.code, tc.message); got != tc.want {
			t.Errorf("classifyRPCCode(%d, %q) = %s, want %s", tc.code, tc.message, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	if got := classify(context.DeadlineExceeded); got != KindTimeout {
		t.Errorf("deadline = %s, want Timeout", got)
	}
	if got := classify(&Error{Kind: KindSlotSkipped}); got != KindSlotSkipped {
		t.Errorf("typed passthrough = %s", got)
	}
	wrapped := fmt.Errorf("attempt: %w", &Error{Kind: KindRateLimit})
	if got := classify(wrapped); got != KindRateLimit {
		t.Errorf("wrapped typed = %s", got)
	}
	if got := classify(errors.New("mystery")); got != KindRPC {
		t.Errorf("unclassified = %s, want generic RPC", got)
	}
	if got := classify(nil); got != ErrorKind("") {
		t.Errorf("nil = %s", got)
	}
}

func TestClassifyNetTimeout(t *testing.T) {
	err := &fakeNetError{timeout: true}
	if got := classify(err); got != KindTimeout {
		t.Errorf("net timeout = %s, want Timeout", got)
	}
}

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "i/o timeout" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestErrorTimestampOptional(t *testing.T) {
	err := &Error{Kind: KindRPC, Message: "x", Timestamp: time.Now()}
	if err.Error() == "" {
		t.Error("timestamped error must still format")
	}
}
