package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	connectAttempts  = 3
	connectBaseWait  = time.Second
	connectJitterPct = 0.25
)

// backoff returns 1s, 2s, 4s... for attempt 0, 1, 2 with ±25% jitter.
func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := connectBaseWait << attempt
	jitter := time.Duration(float64(base) * connectJitterPct * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn up to connectAttempts times while retryable approves the
// error. A nil retryable retries everything. logger may be nil.
func retry(ctx context.Context, what string, logger *slog.Logger, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt - 1)
			if logger != nil {
				logger.WarnContext(ctx, what+" failed, retrying",
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", wait),
					slog.String("error", err.Error()),
				)
			}
			if serr := sleepCtx(ctx, wait); serr != nil {
				return fmt.Errorf("%s: %w", what, serr)
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, connectAttempts, err)
}
