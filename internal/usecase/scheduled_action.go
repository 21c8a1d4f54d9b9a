package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/catalog"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	ctxlog "github.com/ErlanBelekov/offboarding-scheduler/internal/log"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/metrics"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/repository"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/scheduler"
	"github.com/google/uuid"
)

type Executor interface {
	Run(ctx context.Context, a *domain.ScheduledAction) ([]domain.StepResult, error)
}

type ScheduledActionUsecase struct {
	repo     repository.ScheduledActionRepository
	executor Executor
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduledActionUsecase(repo repository.ScheduledActionRepository, executor Executor, logger *slog.Logger) *ScheduledActionUsecase {
	return &ScheduledActionUsecase{
		repo:     repo,
		executor: executor,
		logger:   logger.With("component", "scheduled_action_usecase"),
		now:      time.Now,
	}
}

type CreateScheduledActionInput struct {
	Scope              domain.Scope
	SubjectUserID      string
	SubjectDisplayName string
	SubjectEmail       string
	ScheduledDate      string
	ScheduledTime      string
	Timezone           string
	Config             domain.ActionConfig
	NotifyManager      bool
	NotifyUser         bool
	ManagerEmail       string
	CustomMessage      string
}

func (u *ScheduledActionUsecase) Create(ctx context.Context, input CreateScheduledActionInput) (*domain.ScheduledAction, error) {
	if !input.Scope.Valid() {
		return nil, domain.ErrUnauthorized
	}

	a := &domain.ScheduledAction{
		ID:                 uuid.NewString(),
		TenantID:           input.Scope.TenantID,
		OwnerID:            input.Scope.OwnerID,
		SubjectUserID:      input.SubjectUserID,
		SubjectDisplayName: input.SubjectDisplayName,
		SubjectEmail:       input.SubjectEmail,
		Config:             input.Config,
		NotifyManager:      input.NotifyManager,
		NotifyUser:         input.NotifyUser,
		ManagerEmail:       input.ManagerEmail,
		CustomMessage:      input.CustomMessage,
		Status:             domain.StatusScheduled,
		CreatedAt:          u.now().UTC(),
	}
	if err := validateAction(a, input.ScheduledDate, input.ScheduledTime, input.Timezone); err != nil {
		return nil, err
	}

	created, err := u.repo.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create scheduled action: %w", err)
	}
	u.logger.InfoContext(ctx, "scheduled action created",
		"scheduled_action_id", created.ID, "scheduled_at", created.ScheduledAt, "timezone", created.Timezone)
	return created, nil
}

func (u *ScheduledActionUsecase) List(ctx context.Context, scope domain.Scope, status domain.Status) ([]*domain.ScheduledAction, error) {
	if !scope.Valid() {
		return nil, domain.ErrUnauthorized
	}
	if status != "" && !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "must be one of scheduled, executing, completed, failed"}
	}

	actions, err := u.repo.List(ctx, repository.ListScheduledActionsInput{Scope: scope, Status: status})
	if err != nil {
		return nil, fmt.Errorf("list scheduled actions: %w", err)
	}
	return actions, nil
}

func (u *ScheduledActionUsecase) Get(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error) {
	if !scope.Valid() {
		return nil, domain.ErrUnauthorized
	}
	a, err := u.repo.GetByID(ctx, scope, id)
	if err != nil {
		return nil, fmt.Errorf("get scheduled action: %w", err)
	}
	return a, nil
}

// UpdateScheduledActionInput is a patch: nil fields are left as they are.
// The subject snapshot is not editable.
type UpdateScheduledActionInput struct {
	ScheduledDate *string
	ScheduledTime *string
	Timezone      *string
	Config        *domain.ActionConfig
	NotifyManager *bool
	NotifyUser    *bool
	ManagerEmail  *string
	CustomMessage *string
}

func (u *ScheduledActionUsecase) Update(ctx context.Context, scope domain.Scope, id string, input UpdateScheduledActionInput) (*domain.ScheduledAction, error) {
	if !scope.Valid() {
		return nil, domain.ErrUnauthorized
	}

	current, err := u.repo.GetByID(ctx, scope, id)
	if err != nil {
		return nil, fmt.Errorf("get scheduled action: %w", err)
	}
	if current.Status != domain.StatusScheduled {
		return nil, fmt.Errorf("update %s scheduled action: %w", current.Status, domain.ErrInvalidState)
	}

	next := *current
	date, clock, tz := current.ScheduledDate, current.ScheduledTime, current.Timezone
	if input.ScheduledDate != nil {
		date = *input.ScheduledDate
	}
	if input.ScheduledTime != nil {
		clock = *input.ScheduledTime
	}
	if input.Timezone != nil {
		tz = *input.Timezone
	}
	if input.Config != nil {
		next.Config = *input.Config
	}
	if input.NotifyManager != nil {
		next.NotifyManager = *input.NotifyManager
	}
	if input.NotifyUser != nil {
		next.NotifyUser = *input.NotifyUser
	}
	if input.ManagerEmail != nil {
		next.ManagerEmail = *input.ManagerEmail
	}
	if input.CustomMessage != nil {
		next.CustomMessage = *input.CustomMessage
	}

	if err := validateAction(&next, date, clock, tz); err != nil {
		return nil, err
	}

	// The store re-checks the status, so an execution that claimed the
	// record after the read above still wins.
	updated, err := u.repo.Update(ctx, scope, &next)
	if err != nil {
		return nil, fmt.Errorf("update scheduled action: %w", err)
	}
	u.logger.InfoContext(ctx, "scheduled action updated", "scheduled_action_id", id, "scheduled_at", updated.ScheduledAt)
	return updated, nil
}

func (u *ScheduledActionUsecase) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if !scope.Valid() {
		return domain.ErrUnauthorized
	}
	deleted, err := u.repo.Delete(ctx, scope, id)
	if err != nil {
		return fmt.Errorf("delete scheduled action: %w", err)
	}
	if !deleted {
		return domain.ErrNotFound
	}
	u.logger.InfoContext(ctx, "scheduled action deleted", "scheduled_action_id", id)
	return nil
}

// Execute claims the record and runs it to completion. Both the manual
// trigger and the due-check come through here. A caller that loses the
// claim gets domain.ErrInvalidState and nothing runs. Step failures are
// not errors; they are in the returned record's Results.
func (u *ScheduledActionUsecase) Execute(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error) {
	if !scope.Valid() {
		return nil, domain.ErrUnauthorized
	}

	startedAt := u.now().UTC()
	claimed, err := u.repo.Claim(ctx, scope, id, startedAt)
	if err != nil {
		return nil, fmt.Errorf("claim scheduled action: %w", err)
	}
	if lag := startedAt.Sub(claimed.ScheduledAt); lag >= 0 {
		metrics.ExecutionLag.Observe(lag.Seconds())
	}

	// Claimed runs are not cancellable: side effects cannot be rolled back
	// and a half-finished record would sit in executing until reaped.
	runCtx := ctxlog.WithAttrs(context.WithoutCancel(ctx), slog.String("tenant_id", scope.TenantID))

	metrics.ExecutionsInFlight.Inc()
	results, runErr := u.executor.Run(runCtx, claimed)
	metrics.ExecutionsInFlight.Dec()

	if runErr != nil && !errors.Is(runErr, domain.ErrUnrecoverable) {
		runErr = fmt.Errorf("%w: %v", domain.ErrUnrecoverable, runErr)
	}
	outcome := scheduler.Aggregate(results, runErr, u.now())

	if err := u.repo.Finish(runCtx, claimed.ID, outcome); err != nil {
		u.logger.ErrorContext(ctx, "record execution outcome", "scheduled_action_id", id, "status", outcome.Status, "error", err)
		return nil, fmt.Errorf("finish scheduled action: %w", err)
	}
	metrics.ExecutionsTotal.WithLabelValues(string(outcome.Status)).Inc()

	claimed.Status = outcome.Status
	claimed.Results = outcome.Results
	claimed.FailureReason = outcome.FailureReason
	claimed.FinishedAt = &outcome.FinishedAt

	log := u.logger.With("scheduled_action_id", id, "status", outcome.Status, "steps", len(outcome.Results))
	if outcome.Status == domain.StatusFailed {
		log.WarnContext(runCtx, "scheduled action failed", "reason", *outcome.FailureReason)
	} else {
		log.InfoContext(runCtx, "scheduled action completed")
	}
	return claimed, nil
}

// Templates lists the catalog for clients building a schedule request.
func (u *ScheduledActionUsecase) Templates() []catalog.Template {
	return catalog.Templates()
}
