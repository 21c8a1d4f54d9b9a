package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
)

type ListScheduledActionsInput struct {
	Scope  domain.Scope
	Status domain.Status // empty = all statuses
}

// ScheduledActionRepository is the only shared mutable state in the system.
// Every scoped method treats a record owned by another scope as absent.
type ScheduledActionRepository interface {
	Create(ctx context.Context, a *domain.ScheduledAction) (*domain.ScheduledAction, error)
	GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error)
	// List orders by scheduled instant ascending, soonest first.
	List(ctx context.Context, input ListScheduledActionsInput) ([]*domain.ScheduledAction, error)
	// Update writes the editable fields only while the record is still
	// scheduled. Returns ErrInvalidState for any other status.
	Update(ctx context.Context, scope domain.Scope, a *domain.ScheduledAction) (*domain.ScheduledAction, error)
	// Delete works in any status. false means not found or not owned.
	Delete(ctx context.Context, scope domain.Scope, id string) (bool, error)

	// Claim flips scheduled -> executing in a single conditional update.
	// Exactly one concurrent caller wins; the rest get ErrInvalidState.
	Claim(ctx context.Context, scope domain.Scope, id string, startedAt time.Time) (*domain.ScheduledAction, error)
	// Finish moves an executing record to its terminal state.
	Finish(ctx context.Context, id string, outcome domain.Outcome) error

	// Dispatcher and reaper methods, unscoped by nature.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledAction, error)
	FailStale(ctx context.Context, staleCutoff time.Time, reason string, limit int) (int, error)
}
