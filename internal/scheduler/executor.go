package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/catalog"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/directory"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/email"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/metrics"
)

type Directory interface {
	LookupUser(ctx context.Context, userID string) (*directory.User, error)
	DisableAccount(ctx context.Context, userID string) error
	RevokeSessions(ctx context.Context, userID string) error
	RemoveFromAllGroups(ctx context.Context, userID string) (int, error)
	RemoveDevices(ctx context.Context, userID string) (int, error)
}

type Mailbox interface {
	ConvertToSharedMailbox(ctx context.Context, identity string) error
	BackupMailboxData(ctx context.Context, identity string) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, to string, notice email.Notice) error
}

// timeoutMessage is what a step that ran out of time reports.
const timeoutMessage = "timeout"

type Executor struct {
	directory   Directory
	mailbox     Mailbox
	notifier    Notifier
	stepTimeout time.Duration
	logger      *slog.Logger
}

func NewExecutor(dir Directory, mb Mailbox, notifier Notifier, stepTimeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		directory:   dir,
		mailbox:     mb,
		notifier:    notifier,
		stepTimeout: stepTimeout,
		logger:      logger.With("component", "executor"),
	}
}

// Run performs every planned step exactly once, in catalog order. Step
// failures are recorded in the results and never stop the run. The only
// error returned is domain.ErrUnrecoverable, in which case no step ran.
func (e *Executor) Run(ctx context.Context, a *domain.ScheduledAction) ([]domain.StepResult, error) {
	steps, err := catalog.Plan(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrecoverable, err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	_, err = e.directory.LookupUser(lookupCtx, a.SubjectUserID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrecoverable, err)
	}

	log := e.logger.With("scheduled_action_id", a.ID, "subject_user_id", a.SubjectUserID)
	log.InfoContext(ctx, "executing scheduled action", "steps", len(steps))

	results := make([]domain.StepResult, 0, len(steps))
	for _, step := range steps {
		res := e.runStep(ctx, a, step, results)
		if res.Status == domain.StepError {
			log.WarnContext(ctx, "step failed", "step", step.Name, "error", res.Message)
		} else {
			log.InfoContext(ctx, "step succeeded", "step", step.Name)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Executor) runStep(ctx context.Context, a *domain.ScheduledAction, step domain.Step, sofar []domain.StepResult) domain.StepResult {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	msg, err := e.perform(stepCtx, a, step, sofar)

	metrics.StepDuration.WithLabelValues(string(step.Kind)).Observe(time.Since(start).Seconds())

	res := domain.StepResult{Action: step.Name, Status: domain.StepSuccess, Message: msg}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		res.Status, res.Message = domain.StepError, timeoutMessage
	default:
		res.Status, res.Message = domain.StepError, err.Error()
	}
	metrics.StepsTotal.WithLabelValues(string(step.Kind), string(res.Status)).Inc()
	return res
}

func (e *Executor) perform(ctx context.Context, a *domain.ScheduledAction, step domain.Step, sofar []domain.StepResult) (string, error) {
	uid := a.SubjectUserID

	switch step.Kind {
	case domain.StepDisableAccount:
		return "Account disabled", e.directory.DisableAccount(ctx, uid)

	case domain.StepRevokeSessions:
		return "Sign-in sessions revoked", e.directory.RevokeSessions(ctx, uid)

	case domain.StepRemoveGroups:
		n, err := e.directory.RemoveFromAllGroups(ctx, uid)
		return fmt.Sprintf("Removed from %d groups", n), err

	case domain.StepBackupMailbox:
		path, err := e.mailbox.BackupMailboxData(ctx, a.SubjectEmail)
		return "Mailbox export queued to " + path, err

	case domain.StepConvertMailbox:
		return "Mailbox converted to shared", e.mailbox.ConvertToSharedMailbox(ctx, a.SubjectEmail)

	case domain.StepRemoveDevices:
		n, err := e.directory.RemoveDevices(ctx, uid)
		return fmt.Sprintf("Removed %d devices", n), err

	case domain.StepNotifyManager:
		err := e.notifier.Notify(ctx, a.ManagerEmail, e.notice(a, email.AudienceManager, sofar))
		return "Manager notified at " + a.ManagerEmail, err

	case domain.StepNotifyUser:
		err := e.notifier.Notify(ctx, a.SubjectEmail, e.notice(a, email.AudienceUser, sofar))
		return "User notified at " + a.SubjectEmail, err
	}
	return "", fmt.Errorf("no adapter for step %q", step.Kind)
}

func (e *Executor) notice(a *domain.ScheduledAction, audience email.Audience, sofar []domain.StepResult) email.Notice {
	return email.Notice{
		Audience:      audience,
		SubjectName:   a.SubjectDisplayName,
		SubjectEmail:  a.SubjectEmail,
		ScheduledAt:   a.ScheduledAt,
		Timezone:      a.Timezone,
		CustomMessage: a.CustomMessage,
		Results:       append([]domain.StepResult(nil), sofar...),
	}
}
