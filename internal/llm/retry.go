package llm

import (
	"context"
	"time"
)

// DefaultRetryBackoff is the pause before the single transient retry.
const DefaultRetryBackoff = 500 * time.Millisecond

// RetryTransient runs fn and, if it fails with a transient provider error,
// retries it exactly once after the backoff. Any other error returns
// immediately.
func RetryTransient(ctx context.Context, backoff time.Duration, fn func() error) error {
	err := fn()
	if err == nil || !IsTransient(err) {
		return err
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	return fn()
}
