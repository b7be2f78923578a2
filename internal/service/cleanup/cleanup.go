package cleanup

import (
	"context"
	"time"

	"github.com/nkiryanov/storm/internal/logger"
)

const DefaultInterval = time.Hour

type expiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Worker periodically purges expired refresh tokens
// Expired tokens are rejected anyway, rows are kept only to detect replays until expiration
type Worker struct {
	interval time.Duration
	logger   logger.Logger
	tokens   expiredTokenDeleter
	now      func() time.Time
}

func New(interval time.Duration, tokens expiredTokenDeleter, l logger.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Worker{
		interval: interval,
		logger:   l,
		tokens:   tokens,
		now:      time.Now,
	}
}

// RunOnce deletes tokens expired by now
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := w.tokens.DeleteExpired(ctx, w.now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		w.logger.Info("Expired refresh tokens deleted", "count", deleted)
	}
	return deleted, nil
}

// Start runs cleanup every interval until context is done
// Returned channel is closed when the worker stops
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	w.logger.Debug("Starting refresh token cleanup", "interval", w.interval)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("Cleanup stopped by context")
				return

			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil {
					w.logger.Error("Failed to delete expired refresh tokens", "error", err)
				}
			}
		}
	}()

	return stopped
}
