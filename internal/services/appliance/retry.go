// Package appliance implements the resilient HTTP client that
// mediates every call to a DNS-filtering appliance: bounded retry with
// exponential backoff, auth-aware retry suppression, error
// classification and advisory response validation.
package appliance

import (
	"context"
	"math"
	"net/http"
	"time"
)

// Default retry behavior: 3 retries (4 attempts), exponential backoff
// 1s, 2s, 4s capped at 10s.
const (
	DefaultMaxRetries      = 3
	DefaultBaseDelay       = 1000 * time.Millisecond
	DefaultBackoffMultiple = 2.0
	DefaultMaxDelay        = 10000 * time.Millisecond
)

// SleepFunc waits for the given duration or until the context is
// cancelled. Tests inject a recording no-op.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy describes the bounded retry loop: attempt ceiling,
// backoff curve and the retryable-status predicate.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Sleep      SleepFunc
}

// DefaultRetryPolicy returns the production policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Multiplier: DefaultBackoffMultiple,
		MaxDelay:   DefaultMaxDelay,
		Sleep:      sleepWithContext,
	}
}

// Delay returns the backoff for the given failed attempt index:
// min(base * multiplier^attempt, cap).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retryable reports whether a failure with the given HTTP status is
// worth another attempt. Status 0 is a transport-level failure.
// Authentication failures and other 4xx client errors are final.
func (p RetryPolicy) Retryable(status int) bool {
	switch status {
	case 0,
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// sleepWithContext blocks for d, aborting early on context cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
