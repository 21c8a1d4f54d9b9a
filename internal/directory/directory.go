// Package directory talks to the identity directory that owns the accounts
// being offboarded.
package directory

import (
	"context"
	"log/slog"
)

type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	AccountEnabled    bool   `json:"accountEnabled"`
}

type Directory interface {
	// LookupUser returns domain.ErrSubjectNotFound when the account is gone.
	LookupUser(ctx context.Context, userID string) (*User, error)
	DisableAccount(ctx context.Context, userID string) error
	RevokeSessions(ctx context.Context, userID string) error
	// RemoveFromAllGroups returns how many memberships were removed.
	RemoveFromAllGroups(ctx context.Context, userID string) (int, error)
	// RemoveDevices returns how many registered devices were deleted.
	RemoveDevices(ctx context.Context, userID string) (int, error)
}

// LogDirectory only logs what it would do. Used in ENV=local.
type LogDirectory struct {
	logger *slog.Logger
}

func (d *LogDirectory) LookupUser(_ context.Context, userID string) (*User, error) {
	d.logger.Info("lookup user (local dev)", "user_id", userID)
	return &User{ID: userID, AccountEnabled: true}, nil
}

func (d *LogDirectory) DisableAccount(_ context.Context, userID string) error {
	d.logger.Info("disable account (local dev)", "user_id", userID)
	return nil
}

func (d *LogDirectory) RevokeSessions(_ context.Context, userID string) error {
	d.logger.Info("revoke sessions (local dev)", "user_id", userID)
	return nil
}

func (d *LogDirectory) RemoveFromAllGroups(_ context.Context, userID string) (int, error) {
	d.logger.Info("remove from all groups (local dev)", "user_id", userID)
	return 0, nil
}

func (d *LogDirectory) RemoveDevices(_ context.Context, userID string) (int, error) {
	d.logger.Info("remove devices (local dev)", "user_id", userID)
	return 0, nil
}

// NewDirectory returns a LogDirectory for ENV=local, GraphDirectory otherwise.
func NewDirectory(ctx context.Context, env string, cfg GraphConfig, logger *slog.Logger) Directory {
	if env == "local" {
		return &LogDirectory{logger: logger.With("component", "directory")}
	}
	return NewGraphDirectory(ctx, cfg)
}
