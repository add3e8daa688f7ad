package analytics

import (
	"math"
	"time"
)

// RetryPolicy is the exponential-backoff decision function applied to every
// retryable outbound failure. It only computes delays; the caller owns the
// loop and surfaces MaxRetriesExceeded once the budget is spent.
type RetryPolicy struct {
	// InitialDelay is the delay after the first failed attempt
	InitialDelay time.Duration
	// Multiplier grows the delay per attempt
	Multiplier float64
	// MaxDelay caps the computed delay
	MaxDelay time.Duration
	// MaxAttempts is the number of attempts before the failure is terminal
	MaxAttempts int
}

// DefaultRetryPolicy returns the documented defaults: 1s initial, doubling,
// capped at 30s, three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 1 * time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  3,
	}
}

// Delay returns the backoff delay for attempt k (0-indexed):
// min(initial * multiplier^k, max).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}
