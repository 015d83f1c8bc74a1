package task

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy computes the delay before the next attempt of a failed
// task. Delays grow exponentially with the attempt number, capped at
// MaxDelay, and are perturbed by bounded random jitter so that a burst
// of failures does not produce a thundering herd of simultaneous
// reclaims.
type RetryPolicy struct {
	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay regardless of attempt number.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor between attempts.
	Multiplier float64

	// Jitter is the maximum fraction by which a delay is perturbed in
	// either direction (0.1 means ±10%). Zero disables jitter.
	Jitter float64

	// randFloat returns a value in [0, 1). Injectable for deterministic
	// tests; nil falls back to the shared math/rand source.
	randFloat func() float64
}

// DefaultRetryPolicy returns a RetryPolicy with reasonable defaults:
// 1s base delay doubling per attempt, capped at 5 minutes, ±10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Minute,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// WithRandFloat returns a copy of the policy using the given random
// source for jitter. Intended for tests that need determinism.
func (p RetryPolicy) WithRandFloat(fn func() float64) RetryPolicy {
	p.randFloat = fn
	return p
}

// NextDelay returns the delay to apply before retrying a task whose
// attempt-th execution just failed. The second return value is false
// when the attempt budget is exhausted and the task must be failed
// terminally. The returned delay is never negative and never exceeds
// MaxDelay.
func (p RetryPolicy) NextDelay(attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		r := p.randFloat
		if r == nil {
			r = rand.Float64
		}
		// Scale by a factor in [1-Jitter, 1+Jitter].
		delay *= 1 + p.Jitter*(2*r()-1)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay), true
}
