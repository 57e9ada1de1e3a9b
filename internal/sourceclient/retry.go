package sourceclient

import (
	"context"
	"math"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// RetryPolicy controls the exponential-backoff retry wrapper shared by every
// HTTP operation the Source Client makes (§4.2).
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// delay returns the sleep duration before the given attempt (1-indexed).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// onRetry is invoked with the attempt count before sleeping, used to record
// metrics without coupling the retry loop to obsmetrics directly.
type onRetry func(attempt int, err error)

// withRetry runs op, retrying on retryable errors up to MaxAttempts times
// with capped exponential backoff. Non-retryable errors (validation, auth,
// conflict, and any 4xx other than 429) are surfaced immediately.
func withRetry[T any](ctx context.Context, policy RetryPolicy, notify onRetry, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		ae, ok := err.(*atlaserrors.Error)
		if !ok || !ae.Retryable() || attempt == policy.MaxAttempts {
			return zero, err
		}

		if notify != nil {
			notify(attempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}

	return zero, lastErr
}
