package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roomcommute/roomcommute/internal/provider/resilience"
)

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), resilience.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(context.Context) error {
			calls++
			return assert.AnError
		})

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsOnSuccess(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), resilience.RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond},
		func(context.Context) error {
			calls++
			if calls < 2 {
				return assert.AnError
			}
			return nil
		})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	errNoMatch := errors.New("no match")
	calls := 0
	err := resilience.Retry(context.Background(), resilience.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(context.Context) error {
			calls++
			return resilience.Permanent(errNoMatch)
		})

	assert.ErrorIs(t, err, errNoMatch)
	assert.Equal(t, 1, calls)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = resilience.Retry(context.Background(), resilience.RetryPolicy{}, func(context.Context) error {
		calls++
		return assert.AnError
	})
	assert.Equal(t, 1, calls)
}

func TestRetry_FixedBackoffBetweenAttempts(t *testing.T) {
	start := time.Now()
	_ = resilience.Retry(context.Background(), resilience.RetryPolicy{MaxAttempts: 3, Backoff: 20 * time.Millisecond},
		func(context.Context) error { return assert.AnError })

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
