package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const actionColumns = `
	id, tenant_id, owner_id, user_id, user_display_name, user_email,
	scheduled_date, scheduled_time, timezone, scheduled_date_time,
	template, use_custom_actions, custom_actions,
	status, manager_email, notify_manager, notify_user, custom_message,
	step_results, failure_reason, created_at, updated_at, executed_at, finished_at`

type ScheduledActionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScheduledActionRepository(pool *pgxpool.Pool, logger *slog.Logger) *ScheduledActionRepository {
	return &ScheduledActionRepository{pool: pool, logger: logger.With("component", "scheduled_action_repo")}
}

func (r *ScheduledActionRepository) Create(ctx context.Context, a *domain.ScheduledAction) (*domain.ScheduledAction, error) {
	template, useCustom, custom := configColumns(a.Config)

	query := `
		INSERT INTO scheduled_actions (
			id, tenant_id, owner_id, user_id, user_display_name, user_email,
			scheduled_date, scheduled_time, timezone, scheduled_date_time,
			template, use_custom_actions, custom_actions,
			status, manager_email, notify_manager, notify_user, custom_message,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		RETURNING ` + actionColumns

	row := r.pool.QueryRow(ctx, query,
		a.ID, a.TenantID, a.OwnerID, a.SubjectUserID, a.SubjectDisplayName, a.SubjectEmail,
		a.ScheduledDate, a.ScheduledTime, a.Timezone, a.ScheduledAt,
		template, useCustom, custom,
		a.Status, a.ManagerEmail, a.NotifyManager, a.NotifyUser, a.CustomMessage,
		a.CreatedAt,
	)
	created, err := scanAction(row)
	if err != nil {
		return nil, fmt.Errorf("insert scheduled action: %w", err)
	}
	return created, nil
}

func (r *ScheduledActionRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error) {
	query := `SELECT ` + actionColumns + `
		FROM scheduled_actions
		WHERE id = $1 AND tenant_id = $2 AND owner_id = $3`

	row := r.pool.QueryRow(ctx, query, id, scope.TenantID, scope.OwnerID)
	return scanAction(row)
}

func (r *ScheduledActionRepository) List(ctx context.Context, input repository.ListScheduledActionsInput) ([]*domain.ScheduledAction, error) {
	args := []any{input.Scope.TenantID, input.Scope.OwnerID}
	where := []string{"tenant_id = $1", "owner_id = $2"}

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + actionColumns + `
		FROM scheduled_actions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY scheduled_date_time ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled actions: %w", err)
	}
	return collectActions(rows)
}

func (r *ScheduledActionRepository) Update(ctx context.Context, scope domain.Scope, a *domain.ScheduledAction) (*domain.ScheduledAction, error) {
	template, useCustom, custom := configColumns(a.Config)

	// The date/time/zone triple and the derived instant are always written
	// together so they cannot drift apart.
	query := `
		UPDATE scheduled_actions
		SET    scheduled_date      = $4,
		       scheduled_time      = $5,
		       timezone            = $6,
		       scheduled_date_time = $7,
		       template            = $8,
		       use_custom_actions  = $9,
		       custom_actions      = $10,
		       manager_email       = $11,
		       notify_manager      = $12,
		       notify_user         = $13,
		       custom_message      = $14,
		       updated_at          = NOW()
		WHERE  id = $1 AND tenant_id = $2 AND owner_id = $3 AND status = 'scheduled'
		RETURNING ` + actionColumns

	row := r.pool.QueryRow(ctx, query,
		a.ID, scope.TenantID, scope.OwnerID,
		a.ScheduledDate, a.ScheduledTime, a.Timezone, a.ScheduledAt,
		template, useCustom, custom,
		a.ManagerEmail, a.NotifyManager, a.NotifyUser, a.CustomMessage,
	)
	updated, err := scanAction(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.missOrState(ctx, scope, a.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update scheduled action: %w", err)
	}
	return updated, nil
}

func (r *ScheduledActionRepository) Delete(ctx context.Context, scope domain.Scope, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM scheduled_actions WHERE id = $1 AND tenant_id = $2 AND owner_id = $3`,
		id, scope.TenantID, scope.OwnerID)
	if err != nil {
		return false, fmt.Errorf("delete scheduled action: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduledActionRepository) Claim(ctx context.Context, scope domain.Scope, id string, startedAt time.Time) (*domain.ScheduledAction, error) {
	// Conditional on status = 'scheduled': of any number of concurrent
	// callers only one sees a row come back.
	query := `
		UPDATE scheduled_actions
		SET    status      = 'executing',
		       executed_at = $4,
		       updated_at  = NOW()
		WHERE  id = $1 AND tenant_id = $2 AND owner_id = $3 AND status = 'scheduled'
		RETURNING ` + actionColumns

	row := r.pool.QueryRow(ctx, query, id, scope.TenantID, scope.OwnerID, startedAt)
	claimed, err := scanAction(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.missOrState(ctx, scope, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim scheduled action: %w", err)
	}
	return claimed, nil
}

func (r *ScheduledActionRepository) Finish(ctx context.Context, id string, outcome domain.Outcome) error {
	results := outcome.Results
	if results == nil {
		results = []domain.StepResult{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_actions
		SET    status         = $2,
		       step_results   = $3,
		       failure_reason = $4,
		       finished_at    = $5,
		       updated_at     = NOW()
		WHERE  id = $1 AND status = 'executing'`,
		id, outcome.Status, results, outcome.FailureReason, outcome.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish scheduled action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Reaped or deleted while running; the outcome has nowhere to go.
		r.logger.WarnContext(ctx, "finish matched no executing record",
			"scheduled_action_id", id, "status", outcome.Status)
		return domain.ErrInvalidState
	}
	return nil
}

func (r *ScheduledActionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledAction, error) {
	query := `SELECT ` + actionColumns + `
		FROM scheduled_actions
		WHERE status = 'scheduled' AND scheduled_date_time <= $1
		ORDER BY scheduled_date_time ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled actions: %w", err)
	}
	return collectActions(rows)
}

func (r *ScheduledActionRepository) FailStale(ctx context.Context, staleCutoff time.Time, reason string, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_actions
		SET    status         = 'failed',
		       failure_reason = $2,
		       finished_at    = NOW(),
		       updated_at     = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_actions
			WHERE  status      = 'executing'
			  AND  executed_at < $1
			ORDER BY executed_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, reason, limit)
	if err != nil {
		return 0, fmt.Errorf("fail stale scheduled actions: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.WarnContext(ctx, "failed stale executions", "count", n, "cutoff", staleCutoff)
	}
	return int(tag.RowsAffected()), nil
}

// missOrState tells a conditional write that matched nothing apart: the
// record is either invisible to the scope or exists in the wrong status.
func (r *ScheduledActionRepository) missOrState(ctx context.Context, scope domain.Scope, id string) error {
	if _, err := r.GetByID(ctx, scope, id); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func configColumns(cfg domain.ActionConfig) (*string, bool, *domain.CustomActions) {
	if c, ok := cfg.Custom(); ok {
		return nil, true, &c
	}
	if id, ok := cfg.Template(); ok {
		return &id, false, nil
	}
	return nil, false, nil
}

func configFromColumns(template *string, useCustom bool, custom *domain.CustomActions) domain.ActionConfig {
	if useCustom && custom != nil {
		return domain.CustomConfig(*custom)
	}
	if template != nil {
		return domain.TemplateConfig(*template)
	}
	return domain.ActionConfig{}
}

func collectActions(rows pgx.Rows) ([]*domain.ScheduledAction, error) {
	defer rows.Close()

	var actions []*domain.ScheduledAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled actions: %w", err)
	}
	return actions, nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*domain.ScheduledAction, error) {
	var (
		a         domain.ScheduledAction
		template  *string
		useCustom bool
		custom    *domain.CustomActions
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.OwnerID, &a.SubjectUserID, &a.SubjectDisplayName, &a.SubjectEmail,
		&a.ScheduledDate, &a.ScheduledTime, &a.Timezone, &a.ScheduledAt,
		&template, &useCustom, &custom,
		&a.Status, &a.ManagerEmail, &a.NotifyManager, &a.NotifyUser, &a.CustomMessage,
		&a.Results, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt, &a.ExecutedAt, &a.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan scheduled action: %w", err)
	}
	a.Config = configFromColumns(template, useCustom, custom)
	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}
