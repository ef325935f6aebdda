package auth

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes expired auth records.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Janitor periodically removes revoked tokens and magic links past expiry.
type Janitor struct {
	repo     Purger
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a Janitor sweeping every interval.
func NewJanitor(repo Purger, interval time.Duration) *Janitor {
	return &Janitor{repo: repo, interval: interval, now: time.Now}
}

// Start runs the sweep loop in a background goroutine until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("auth janitor started", "interval", j.interval)

		for {
			select {
			case <-ticker.C:
				if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
					slog.Error("auth janitor sweep failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("auth janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one purge and returns the number of removed records.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.repo.PurgeExpired(ctx, j.now())
	if err != nil {
		return n, err
	}
	if n > 0 {
		slog.Info("auth janitor purged expired records", "count", n)
	}
	return n, nil
}
