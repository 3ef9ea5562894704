package app

import (
	"context"
	"time"

	"selfiebot/internal/util"
)

// Sweep deletes media older than the retention period.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-time.Duration(w.retentionDays) * 24 * time.Hour)
	return w.media.Sweep(ctx, cutoff)
}

// RunCleanup sweeps once immediately and then every interval until ctx ends.
func (w *Worker) RunCleanup(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger := util.LoggerFromContext(ctx).With("task", "cleanup")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		removed, err := w.Sweep(ctx)
		if err != nil {
			logger.Error("media sweep failed", "err", err)
		} else {
			logger.Info("media sweep done", "removed", removed, "retention_days", w.retentionDays)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
