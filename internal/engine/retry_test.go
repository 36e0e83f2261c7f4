package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/auraos/orchestrator/pkg/schema"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		policy  schema.RetryPolicy
		want    time.Duration
	}{
		{"exponential attempt 3", 3, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1000}, 4 * time.Second},
		{"exponential attempt 1", 1, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1000}, time.Second},
		{"linear attempt 2", 2, schema.RetryPolicy{BackoffStrategy: schema.BackoffLinear, RetryDelay: 1000}, 2 * time.Second},
		{"linear attempt 5", 5, schema.RetryPolicy{BackoffStrategy: schema.BackoffLinear, RetryDelay: 200}, time.Second},
		{"fixed attempt 1", 1, schema.RetryPolicy{BackoffStrategy: schema.BackoffFixed, RetryDelay: 500}, 500 * time.Millisecond},
		{"fixed attempt 9", 9, schema.RetryPolicy{BackoffStrategy: schema.BackoffFixed, RetryDelay: 500}, 500 * time.Millisecond},
		{"empty strategy behaves as fixed", 4, schema.RetryPolicy{RetryDelay: 250}, 250 * time.Millisecond},
		{"zero delay", 3, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential}, 0},
		{"attempt zero", 0, schema.RetryPolicy{BackoffStrategy: schema.BackoffFixed, RetryDelay: 500}, 0},
		{"exponential attempt 34 still exact", 34, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1000}, time.Second << 33},
		{"exponential attempt 35 saturates", 35, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1000}, MaxDelay},
		{"exponential attempt 64 saturates", 64, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1}, MaxDelay},
		{"exponential attempt 200 saturates", 200, schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1}, MaxDelay},
		{"huge base saturates", 1, schema.RetryPolicy{BackoffStrategy: schema.BackoffFixed, RetryDelay: 1 << 62}, MaxDelay},
		{"linear overflow saturates", 1 << 20, schema.RetryPolicy{BackoffStrategy: schema.BackoffLinear, RetryDelay: 1 << 40}, MaxDelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.attempt, tt.policy))
		})
	}
}

func TestDelay_NeverNegative(t *testing.T) {
	policy := schema.RetryPolicy{BackoffStrategy: schema.BackoffExponential, RetryDelay: 1000}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 100; attempt++ {
		d := Delay(attempt, policy)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}

func TestTotalAttempts(t *testing.T) {
	assert.Equal(t, 1, TotalAttempts(schema.RetryPolicy{}))
	assert.Equal(t, 4, TotalAttempts(schema.RetryPolicy{MaxRetries: 3}))
	assert.Equal(t, 1, TotalAttempts(schema.RetryPolicy{MaxRetries: -2}))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errors.New("connection reset")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeStepFailed, "provider failed")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeProvider, "quota")))

	for _, code := range []string{schema.ErrCodeValidation, schema.ErrCodeExpression, schema.ErrCodeNotFound, schema.ErrCodeDependencyUnmet} {
		assert.False(t, IsRetryableError(schema.NewError(code, "x")), code)
	}

	wrapped := schema.NewError(schema.ErrCodeStepFailed, "cancelled").WithCause(context.Canceled)
	assert.False(t, IsRetryableError(wrapped))
}

func TestWaitForBackoff(t *testing.T) {
	assert.NoError(t, WaitForBackoff(context.Background(), 0))
	assert.NoError(t, WaitForBackoff(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitForBackoff(ctx, time.Hour), context.Canceled)
}
