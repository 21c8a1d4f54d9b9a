package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/metrics"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/repository"
)

// InterruptedReason is recorded on executions the reaper gives up on.
const InterruptedReason = "execution interrupted"

// Reaper fails records left in executing by a process that died mid-run.
// They are never put back to scheduled: some of their side effects may
// already have happened.
type Reaper struct {
	repo       repository.ScheduledActionRepository
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewReaper(repo repository.ScheduledActionRepository, logger *slog.Logger, interval, staleAfter time.Duration) *Reaper {
	return &Reaper{
		repo:       repo,
		logger:     logger.With("component", "reaper"),
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "stale_after", r.staleAfter)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds()) }()

	staleCutoff := start.Add(-r.staleAfter)

	failed, err := r.repo.FailStale(ctx, staleCutoff, InterruptedReason, 100)
	if err != nil {
		r.logger.Error("fail stale executions", "error", err)
		return
	}
	if failed > 0 {
		metrics.ReaperFailedTotal.Add(float64(failed))
		r.logger.Warn("failed interrupted executions", "count", failed, "stale_cutoff", staleCutoff)
	}
}
