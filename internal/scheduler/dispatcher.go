package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/metrics"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/repository"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/requestid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Runner is the execute path shared with the manual trigger.
type Runner interface {
	Execute(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error)
}

// Dispatcher finds scheduled actions whose instant has passed and hands each
// one to the Runner. It never claims on its own; a record that was executed
// manually in the meantime simply loses the claim race.
type Dispatcher struct {
	repo        repository.ScheduledActionRepository
	runner      Runner
	logger      *slog.Logger
	spec        string
	batchSize   int
	concurrency int
	now         func() time.Time
}

func NewDispatcher(
	repo repository.ScheduledActionRepository,
	runner Runner,
	logger *slog.Logger,
	spec string,
	batchSize int,
	concurrency int,
) (*Dispatcher, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse due-check spec %q: %w", spec, err)
	}
	return &Dispatcher{
		repo:        repo,
		runner:      runner,
		logger:      logger.With("component", "dispatcher"),
		spec:        spec,
		batchSize:   batchSize,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{d.logger})), cron.WithLogger(cronLogger{d.logger}))
	// Parsed once already in NewDispatcher.
	_, _ = c.AddFunc(d.spec, func() { d.dispatch(ctx) })
	c.Start()

	d.logger.Info("dispatcher started", "spec", d.spec, "batch_size", d.batchSize, "concurrency", d.concurrency)

	<-ctx.Done()
	<-c.Stop().Done()
	d.logger.Info("dispatcher shut down")
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	due, err := d.repo.ListDue(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		d.logger.Error("list due scheduled actions", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	d.logger.Info("dispatching due scheduled actions", "count", len(due))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	// Due records come back soonest first and are started in that order.
	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d.run(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) run(ctx context.Context, a *domain.ScheduledAction) {
	ctx, _ = requestid.Ensure(ctx)
	executed, err := d.runner.Execute(ctx, a.Scope(), a.ID)
	switch {
	case err == nil:
		metrics.DispatchedTotal.WithLabelValues("executed").Inc()
		d.logger.Info("due scheduled action executed", "scheduled_action_id", a.ID, "status", executed.Status)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrNotFound):
		// Claimed by a manual trigger or deleted since the listing.
		metrics.DispatchedTotal.WithLabelValues("skipped").Inc()
		d.logger.Debug("due scheduled action skipped", "scheduled_action_id", a.ID, "reason", err)
	default:
		metrics.DispatchedTotal.WithLabelValues("error").Inc()
		d.logger.Error("execute due scheduled action", "scheduled_action_id", a.ID, "error", err)
	}
}

// cronLogger routes robfig/cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
