package app

import (
	"context"
	"log/slog"
	"time"
)

type expiredTokenCleaner interface {
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

// runTokenJanitor deletes expired tokens of one kind (refresh or password
// reset) that were never presented again. It returns when ctx is cancelled.
func runTokenJanitor(ctx context.Context, kind string, cleaner expiredTokenCleaner, interval time.Duration, now func() time.Time) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := cleaner.CleanExpired(ctx, now())
			if err != nil {
				slog.Error("token cleanup failed", "kind", kind, "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("expired tokens removed", "kind", kind, "count", removed)
			}
		}
	}
}
