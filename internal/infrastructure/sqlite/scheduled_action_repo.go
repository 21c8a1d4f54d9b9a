package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/repository"
)

const actionColumns = `
	id, tenant_id, owner_id, user_id, user_display_name, user_email,
	scheduled_date, scheduled_time, timezone, scheduled_date_time,
	template, use_custom_actions, custom_actions,
	status, manager_email, notify_manager, notify_user, custom_message,
	step_results, failure_reason, created_at, updated_at, executed_at, finished_at`

type ScheduledActionRepository struct {
	db *sql.DB
}

func NewScheduledActionRepository(db *sql.DB) *ScheduledActionRepository {
	return &ScheduledActionRepository{db: db}
}

// Ping satisfies health.Pinger.
func (r *ScheduledActionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ScheduledActionRepository) Create(ctx context.Context, a *domain.ScheduledAction) (*domain.ScheduledAction, error) {
	template, useCustom, custom, err := configColumns(a.Config)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_actions (
			id, tenant_id, owner_id, user_id, user_display_name, user_email,
			scheduled_date, scheduled_time, timezone, scheduled_date_time,
			template, use_custom_actions, custom_actions,
			status, manager_email, notify_manager, notify_user, custom_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.OwnerID, a.SubjectUserID, a.SubjectDisplayName, a.SubjectEmail,
		a.ScheduledDate, a.ScheduledTime, a.Timezone, formatTime(a.ScheduledAt),
		template, useCustom, custom,
		string(a.Status), a.ManagerEmail, a.NotifyManager, a.NotifyUser, a.CustomMessage,
		formatTime(a.CreatedAt), formatTime(a.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert scheduled action: %w", err)
	}
	return r.GetByID(ctx, a.Scope(), a.ID)
}

func (r *ScheduledActionRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+actionColumns+`
		FROM scheduled_actions
		WHERE id = ? AND tenant_id = ? AND owner_id = ?`,
		id, scope.TenantID, scope.OwnerID)
	return scanAction(row)
}

func (r *ScheduledActionRepository) List(ctx context.Context, input repository.ListScheduledActionsInput) ([]*domain.ScheduledAction, error) {
	args := []any{input.Scope.TenantID, input.Scope.OwnerID}
	where := []string{"tenant_id = ?", "owner_id = ?"}

	if input.Status != "" {
		args = append(args, string(input.Status))
		where = append(where, "status = ?")
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+actionColumns+`
		FROM scheduled_actions
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY scheduled_date_time ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled actions: %w", err)
	}
	return collectActions(rows)
}

func (r *ScheduledActionRepository) Update(ctx context.Context, scope domain.Scope, a *domain.ScheduledAction) (*domain.ScheduledAction, error) {
	template, useCustom, custom, err := configColumns(a.Config)
	if err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET    scheduled_date      = ?,
		       scheduled_time      = ?,
		       timezone            = ?,
		       scheduled_date_time = ?,
		       template            = ?,
		       use_custom_actions  = ?,
		       custom_actions      = ?,
		       manager_email       = ?,
		       notify_manager      = ?,
		       notify_user         = ?,
		       custom_message      = ?,
		       updated_at          = ?
		WHERE  id = ? AND tenant_id = ? AND owner_id = ? AND status = 'scheduled'`,
		a.ScheduledDate, a.ScheduledTime, a.Timezone, formatTime(a.ScheduledAt),
		template, useCustom, custom,
		a.ManagerEmail, a.NotifyManager, a.NotifyUser, a.CustomMessage,
		formatTime(time.Now()),
		a.ID, scope.TenantID, scope.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("update scheduled action: %w", err)
	}
	if err := r.expectOne(ctx, res, scope, a.ID); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, scope, a.ID)
}

func (r *ScheduledActionRepository) Delete(ctx context.Context, scope domain.Scope, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_actions WHERE id = ? AND tenant_id = ? AND owner_id = ?`,
		id, scope.TenantID, scope.OwnerID)
	if err != nil {
		return false, fmt.Errorf("delete scheduled action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete scheduled action: %w", err)
	}
	return n > 0, nil
}

func (r *ScheduledActionRepository) Claim(ctx context.Context, scope domain.Scope, id string, startedAt time.Time) (*domain.ScheduledAction, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET    status      = 'executing',
		       executed_at = ?,
		       updated_at  = ?
		WHERE  id = ? AND tenant_id = ? AND owner_id = ? AND status = 'scheduled'`,
		formatTime(startedAt), formatTime(time.Now()),
		id, scope.TenantID, scope.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("claim scheduled action: %w", err)
	}
	if err := r.expectOne(ctx, res, scope, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, scope, id)
}

func (r *ScheduledActionRepository) Finish(ctx context.Context, id string, outcome domain.Outcome) error {
	results := outcome.Results
	if results == nil {
		results = []domain.StepResult{}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode step results: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET    status         = ?,
		       step_results   = ?,
		       failure_reason = ?,
		       finished_at    = ?,
		       updated_at     = ?
		WHERE  id = ? AND status = 'executing'`,
		string(outcome.Status), string(encoded), nullableString(outcome.FailureReason),
		formatTime(outcome.FinishedAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish scheduled action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish scheduled action: %w", err)
	}
	if n == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

func (r *ScheduledActionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledAction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+actionColumns+`
		FROM scheduled_actions
		WHERE status = 'scheduled' AND scheduled_date_time <= ?
		ORDER BY scheduled_date_time ASC
		LIMIT ?`, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled actions: %w", err)
	}
	return collectActions(rows)
}

func (r *ScheduledActionRepository) FailStale(ctx context.Context, staleCutoff time.Time, reason string, limit int) (int, error) {
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET    status         = 'failed',
		       failure_reason = ?,
		       finished_at    = ?,
		       updated_at     = ?
		WHERE id IN (
			SELECT id FROM scheduled_actions
			WHERE  status      = 'executing'
			  AND  executed_at < ?
			ORDER BY executed_at ASC
			LIMIT ?
		)`, reason, now, now, formatTime(staleCutoff), limit)
	if err != nil {
		return 0, fmt.Errorf("fail stale scheduled actions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale scheduled actions: %w", err)
	}
	return int(n), nil
}

// expectOne turns a conditional write that matched no row into ErrNotFound
// or ErrInvalidState, depending on whether the scope can see the record.
func (r *ScheduledActionRepository) expectOne(ctx context.Context, res sql.Result, scope domain.Scope, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, scope, id); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func configColumns(cfg domain.ActionConfig) (template sql.NullString, useCustom bool, custom sql.NullString, err error) {
	if c, ok := cfg.Custom(); ok {
		b, err := json.Marshal(c)
		if err != nil {
			return template, false, custom, fmt.Errorf("encode custom actions: %w", err)
		}
		return template, true, sql.NullString{String: string(b), Valid: true}, nil
	}
	if id, ok := cfg.Template(); ok {
		return sql.NullString{String: id, Valid: true}, false, custom, nil
	}
	return template, false, custom, nil
}

func collectActions(rows *sql.Rows) ([]*domain.ScheduledAction, error) {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*domain.ScheduledAction, error) {
	var (
		a                      domain.ScheduledAction
		status                 string
		scheduledAt            string
		template, custom       sql.NullString
		useCustom              bool
		results                string
		failureReason          sql.NullString
		createdAt, updatedAt   string
		executedAt, finishedAt sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.OwnerID, &a.SubjectUserID, &a.SubjectDisplayName, &a.SubjectEmail,
		&a.ScheduledDate, &a.ScheduledTime, &a.Timezone, &scheduledAt,
		&template, &useCustom, &custom,
		&status, &a.ManagerEmail, &a.NotifyManager, &a.NotifyUser, &a.CustomMessage,
		&results, &failureReason, &createdAt, &updatedAt, &executedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan scheduled action: %w", err)
	}

	a.Status = domain.Status(status)
	if a.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, fmt.Errorf("parse scheduled_date_time: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if a.ExecutedAt, err = parseNullableTime(executedAt); err != nil {
		return nil, fmt.Errorf("parse executed_at: %w", err)
	}
	if a.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	if failureReason.Valid {
		a.FailureReason = &failureReason.String
	}
	if err := json.Unmarshal([]byte(results), &a.Results); err != nil {
		return nil, fmt.Errorf("decode step results: %w", err)
	}

	switch {
	case useCustom && custom.Valid:
		var c domain.CustomActions
		if err := json.Unmarshal([]byte(custom.String), &c); err != nil {
			return nil, fmt.Errorf("decode custom actions: %w", err)
		}
		a.Config = domain.CustomConfig(c)
	case template.Valid:
		a.Config = domain.TemplateConfig(template.String)
	}
	return &a, nil
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
