package ai

import (
	"context"
	"time"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// withRetry runs fn up to maxAttempts times with doubling backoff. Transient
// upstream failures are the norm for the model services, so callers get one
// degraded answer instead of an immediate error.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := initialBackoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}
