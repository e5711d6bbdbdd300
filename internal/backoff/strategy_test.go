package backoff

import (
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	s := Exponential{}

	// Without jitter the schedule is deterministic.
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}

	for _, tc := range cases {
		got := s.Delay(tc.attempt, 100*time.Millisecond, 10*time.Second, 2.0, 0)
		if got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialCapped(t *testing.T) {
	s := Exponential{}

	got := s.Delay(20, 100*time.Millisecond, 2*time.Second, 2.0, 0)
	if got != 2*time.Second {
		t.Errorf("Delay(20) = %v, want cap 2s", got)
	}

	// Extreme attempts must not overflow into negative durations.
	got = s.Delay(1000, time.Second, 5*time.Minute, 2.0, 0.5)
	if got < 0 || got > 5*time.Minute {
		t.Errorf("Delay(1000) = %v, out of [0, 5m]", got)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	s := Exponential{}

	for i := 0; i < 100; i++ {
		got := s.Delay(2, 100*time.Millisecond, 10*time.Second, 2.0, 0.5)
		if got < 400*time.Millisecond || got > 600*time.Millisecond {
			t.Fatalf("jittered delay %v outside [400ms, 600ms]", got)
		}
	}
}

func TestExponentialNegativeAttempt(t *testing.T) {
	s := Exponential{}
	got := s.Delay(-3, 100*time.Millisecond, time.Second, 2.0, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Delay(-3) = %v, want base", got)
	}
}

func TestDecorrelatedBounds(t *testing.T) {
	s := Decorrelated{}

	if got := s.Delay(0, 100*time.Millisecond, time.Minute, 0, 0); got != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want base", got)
	}

	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			got := s.Delay(attempt, 100*time.Millisecond, 5*time.Second, 0, 0)
			if got < 100*time.Millisecond || got > 5*time.Second {
				t.Fatalf("Delay(%d) = %v outside [base, max]", attempt, got)
			}
		}
	}
}
