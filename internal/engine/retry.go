package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/auraos/orchestrator/pkg/schema"
)

// MaxDelay caps every computed backoff so large policies saturate instead
// of overflowing.
const MaxDelay = time.Duration(math.MaxInt64)

// Delay returns the wait before retry number attempt (1 = first retry).
//   - fixed:       RetryDelay
//   - linear:      RetryDelay * attempt
//   - exponential: RetryDelay * 2^(attempt-1)
//
// Results beyond MaxDelay are clamped to it.
func Delay(attempt int, policy schema.RetryPolicy) time.Duration {
	if attempt < 1 || policy.RetryDelay <= 0 {
		return 0
	}
	if policy.RetryDelay > int64(MaxDelay/time.Millisecond) {
		return MaxDelay
	}
	base := time.Duration(policy.RetryDelay) * time.Millisecond

	switch policy.BackoffStrategy {
	case schema.BackoffLinear:
		if base > MaxDelay/time.Duration(attempt) {
			return MaxDelay
		}
		return base * time.Duration(attempt)
	case schema.BackoffExponential:
		shift := attempt - 1
		if shift >= 63 || base > MaxDelay>>shift {
			return MaxDelay
		}
		return base << shift
	default:
		return base
	}
}

// TotalAttempts is MaxRetries + 1; a negative MaxRetries counts as zero.
func TotalAttempts(policy schema.RetryPolicy) int {
	if policy.MaxRetries < 0 {
		return 1
	}
	return policy.MaxRetries + 1
}

// IsRetryableError reports whether another attempt could change the outcome.
// Cancellation and deterministic failures (bad expressions, invalid input)
// are not retried; provider failures are.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch schema.ErrorCode(err) {
	case schema.ErrCodeValidation, schema.ErrCodeExpression, schema.ErrCodeNotFound, schema.ErrCodeDependencyUnmet:
		return false
	}
	return true
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// WaitForBackoff sleeps for delay or returns early if the context is cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
