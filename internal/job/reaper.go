package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Reaper fails jobs whose worker vanished mid-run, so that no job stays in
// processing past its execution timeout plus a grace period.
type Reaper struct {
	registry Registry
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	onReap   func(ids []uuid.UUID)
}

func NewReaper(registry Registry, timeout, grace time.Duration, logger *slog.Logger) *Reaper {
	interval := grace
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		registry: registry,
		maxAge:   timeout + grace,
		interval: interval,
		logger:   logger,
	}
}

// OnReap registers a callback invoked with the ids failed by each sweep.
func (r *Reaper) OnReap(fn func(ids []uuid.UUID)) {
	r.onReap = fn
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reap stale jobs", "error", err)
			}
		}
	}
}

// Sweep fails every job that has been processing longer than the limit.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	msg := fmt.Sprintf("job abandoned: no result within %s", r.maxAge)
	ids, err := r.registry.FailStale(ctx, r.maxAge, msg)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		r.logger.Warn("reaped stale jobs", "count", len(ids))
		if r.onReap != nil {
			r.onReap(ids)
		}
	}
	return len(ids), nil
}
