package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseURL    string `env:"DATABASE_URL"    validate:"required_if=DatabaseDriver postgres"`
	SqlitePath     string `env:"SQLITE_PATH"     envDefault:"./data/offboarding.sqlite" validate:"required_if=DatabaseDriver sqlite"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret    string `env:"JWT_SECRET,required" validate:"required,min=32"`
	ResendAPIKey string `env:"RESEND_API_KEY"       validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"          validate:"required_if=Env production,required_if=Env staging"`

	GraphTenantID     string `env:"GRAPH_TENANT_ID"     validate:"required_if=Env production,required_if=Env staging"`
	GraphClientID     string `env:"GRAPH_CLIENT_ID"     validate:"required_if=Env production,required_if=Env staging"`
	GraphClientSecret string `env:"GRAPH_CLIENT_SECRET" validate:"required_if=Env production,required_if=Env staging"`
	GraphBaseURL      string `env:"GRAPH_BASE_URL"      envDefault:"https://graph.microsoft.com/v1.0" validate:"url"`

	ExchangeBridgeURL   string `env:"EXCHANGE_BRIDGE_URL"   validate:"required_if=Env production,required_if=Env staging"`
	ExchangeBridgeToken string `env:"EXCHANGE_BRIDGE_TOKEN" validate:"required_if=Env production,required_if=Env staging"`
	ExchangeBackupPath  string `env:"EXCHANGE_BACKUP_PATH"  envDefault:"\\\\backup\\mailboxes"`

	StepTimeoutSec       int    `env:"STEP_TIMEOUT_SEC"      envDefault:"120" validate:"min=1,max=3600"`
	DueCheckSpec         string `env:"DUE_CHECK_SPEC"        envDefault:"@every 30s" validate:"required"`
	DueBatchSize         int    `env:"DUE_BATCH_SIZE"        envDefault:"50" validate:"min=1,max=1000"`
	ExecutionConcurrency int    `env:"EXECUTION_CONCURRENCY" envDefault:"5" validate:"min=1,max=100"`
	StaleExecutionMin    int    `env:"STALE_EXECUTION_MIN"   envDefault:"60" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSec) * time.Second
}

// StaleAfter is how long a record may sit in executing before the reaper
// fails it. It must comfortably exceed a full run of StepTimeout-bounded steps.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleExecutionMin) * time.Minute
}
