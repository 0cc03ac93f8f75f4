package shared

import (
	"context"
	"time"
)

const (
	retryAttempts = 3
	retryBaseWait = 100 * time.Millisecond
)

// WithRetry runs fn up to three times with exponential backoff starting
// at 100ms. The last error is returned when every attempt fails.
func WithRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	wait := retryBaseWait
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
