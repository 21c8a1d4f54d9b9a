// Package storage opens the scheduled action store selected by config.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/offboarding-scheduler/config"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/health"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/repository"
)

type Store struct {
	Repo   repository.ScheduledActionRepository
	Health health.Dependency
	close  func()
}

func (s *Store) Close() {
	s.close()
}

// Open connects to the configured driver and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		repo := sqlite.NewScheduledActionRepository(db)
		logger.Info("db connected", "driver", "sqlite", "path", cfg.SqlitePath)
		return &Store{
			Repo:   repo,
			Health: health.Dependency{Name: "sqlite", Pinger: repo},
			close:  func() { _ = db.Close() },
		}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("db connected", "driver", "postgres")
		return &Store{
			Repo:   postgres.NewScheduledActionRepository(pool, logger),
			Health: health.Dependency{Name: "postgres", Pinger: pool},
			close:  pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
}
