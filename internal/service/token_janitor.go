package service

import (
	"context"
	"log/slog"
	"time"

	"go-auth-service/pkg/errutil"
)

type ExpiredTokenCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// TokenJanitor deletes expired refresh-token rows on a fixed interval.
type TokenJanitor struct {
	store    ExpiredTokenCleaner
	interval time.Duration
	logger   *slog.Logger
}

func NewTokenJanitor(store ExpiredTokenCleaner, interval time.Duration, logger *slog.Logger) *TokenJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenJanitor{store: store, interval: interval, logger: logger}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (j *TokenJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *TokenJanitor) sweep(ctx context.Context) {
	removed, err := j.store.CleanExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			errutil.LogError(j.logger, "refresh token cleanup failed", err)
		}
		return
	}
	if removed > 0 {
		j.logger.Info("expired refresh tokens removed", "count", removed)
	}
}
