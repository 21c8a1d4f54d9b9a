package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
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
	httptransport "github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	// Adapters
	dir := directory.NewDirectory(ctx, cfg.Env, directory.GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		BaseURL:      cfg.GraphBaseURL,
	}, logger)
	mb := mailbox.NewMailbox(cfg.Env, cfg.ExchangeBridgeURL, cfg.ExchangeBridgeToken, cfg.ExchangeBackupPath, logger)
	notifier := email.NewNotifier(email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger))

	// Scheduled actions
	executor := scheduler.NewExecutor(dir, mb, notifier, cfg.StepTimeout(), logger)
	actionUsecase := usecase.NewScheduledActionUsecase(store.Repo, executor, logger)
	actionHandler := handler.NewScheduledActionHandler(actionUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, store.Health)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, actionHandler, []byte(cfg.JWTSecret)),
		// A manual execute answers only after every step has run.
		WriteTimeout: 15 * time.Minute,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	// In-flight executions are detached from the request; give them the
	// same window a step gets before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StepTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
