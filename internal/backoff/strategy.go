// Package backoff holds the delay schedules shared by the invoker's
// retry loop and the per-endpoint throttle state.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt. Attempt numbering
// starts at 0 for the delay after the first failure.
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential is base*multiplier^attempt with uniform jitter added on
// top, capped at max.
type Exponential struct{}

func (Exponential) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Bound the exponent so the float math cannot overflow into a
	// negative duration.
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(base) * pow(multiplier, attempt))
	if d < 0 || d > max {
		d = max
	}

	jitter = clamp01(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(d) * jitter * rand.Float64())
		if d+extra > max {
			d = max
		} else {
			d += extra
		}
	}
	return d
}

// Decorrelated is the AWS decorrelated-jitter schedule: each delay is
// drawn uniformly from [base, min(max, base*3^attempt)]. It spreads
// concurrent retriers further apart than exponential jitter.
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, base, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lo := float64(base)
	hi := lo * pow(3.0, attempt)
	if hi > float64(max) || hi < 0 {
		hi = float64(max)
	}
	if hi < lo {
		hi = lo
	}

	d := time.Duration(lo + rand.Float64()*(hi-lo))
	if d < 0 || d > max {
		d = max
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
