package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy is four attempts starting at one second, doubling.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, InitialBackoff: time.Second}

// Retry runs fn until it succeeds, the attempts are exhausted or ctx is done.
// Every failed attempt is logged at Warn with the object name.
func Retry(ctx context.Context, policy RetryPolicy, object string, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.InitialBackoff
	var lastErr error

	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		slog.Warn(
			"Upload failed, will retry.",
			"object", object,
			"attempt", i+1,
			"maxRetries", attempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "object", object, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "object", object, "error", lastErr)
	return fmt.Errorf("upload for %s failed after %d attempts: %w", object, attempts, lastErr)
}
