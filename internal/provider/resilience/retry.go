package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds a retried operation: at most MaxAttempts calls with a
// fixed Backoff between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Permanent marks err as not worth retrying. Retry returns the unwrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx ends, or
// MaxAttempts calls have been made. It returns the last error from fn.
// A MaxAttempts below 1 is treated as 1.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(attempts-1)),
		ctx,
	)

	return backoff.Retry(func() error { return fn(ctx) }, policy)
}
