package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/config"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/directory"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/email"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/health"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/infrastructure/storage"
	ctxlog "github.com/ErlanBelekov/offboarding-scheduler/internal/log"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/mailbox"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/metrics"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/scheduler"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, store.Health)

	dir := directory.NewDirectory(ctx, cfg.Env, directory.GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		BaseURL:      cfg.GraphBaseURL,
	}, logger)
	mb := mailbox.NewMailbox(cfg.Env, cfg.ExchangeBridgeURL, cfg.ExchangeBridgeToken, cfg.ExchangeBackupPath, logger)
	notifier := email.NewNotifier(email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger))

	executor := scheduler.NewExecutor(dir, mb, notifier, cfg.StepTimeout(), logger)
	actionUsecase := usecase.NewScheduledActionUsecase(store.Repo, executor, logger)

	dispatcher, err := scheduler.NewDispatcher(store.Repo, actionUsecase, logger,
		cfg.DueCheckSpec, cfg.DueBatchSize, cfg.ExecutionConcurrency)
	if err != nil {
		stop()
		log.Fatalf("dispatcher: %v", err)
	}

	// A run that outlives StaleAfter is assumed dead with its process.
	reaper := scheduler.NewReaper(store.Repo, logger, time.Minute, cfg.StaleAfter())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); dispatcher.Start(ctx) }()
	go func() { defer wg.Done(); reaper.Start(ctx) }()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	// Dispatcher.Start returns once running executions have been recorded.
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
