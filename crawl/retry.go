package crawl

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetryDelays returns the backoff delays used for proxy source
// fetches and backing store pings: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// Retry calls op until it succeeds, waiting delays[i] before attempt i+2.
// It makes len(delays)+1 attempts at most and returns the last error.
// Page fetches are never retried; this is for setup and maintenance calls.
func Retry(ctx context.Context, name string, delays []time.Duration, logger *slog.Logger, op func(ctx context.Context) error) error {
	maxAttempts := len(delays) + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry after the last attempt
		if attempt >= maxAttempts-1 {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if logger != nil {
			logger.Debug("retrying", "op", name, "attempt", attempt+2, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}

	return lastErr
}
