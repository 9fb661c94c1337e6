package turnloop

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures the loop's backoff for retriable model errors.
// Defaults (500ms initial, 10s cap, 3 attempts) match the engine's retry
// contract; the shape is the teacher's internal/retry.Config fields
// renamed to this package's defaults rather than imported wholesale,
// since the loop only ever needs fixed-attempt exponential-with-jitter
// backoff for one call site (the model stream), not retry.Do's generic
// op-as-closure API.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
}

// DefaultRetryPolicy returns the engine's retry contract: initial 500ms,
// cap 10s, max 3 attempts, exponential with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

func (p RetryPolicy) sanitized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Factor <= 0 {
		p.Factor = 2.0
	}
	return p
}

// backoff computes the delay before the given attempt (1-based: attempt
// 1 retries after the first failure).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d = d/2 + rand.Float64()*(d/2)
	}
	return time.Duration(d)
}
