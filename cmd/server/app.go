package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jparker/dispatch-api/internal/api"
	"github.com/jparker/dispatch-api/internal/api/middleware"
	"github.com/jparker/dispatch-api/internal/config"
	"github.com/jparker/dispatch-api/internal/events"
	"github.com/jparker/dispatch-api/internal/platform/cache"
	"github.com/jparker/dispatch-api/internal/platform/postgres"
	"github.com/jparker/dispatch-api/internal/service"
	"github.com/jparker/dispatch-api/internal/service/auth"
	"github.com/jparker/dispatch-api/internal/task"
	"github.com/jparker/dispatch-api/internal/task/handlers"
)

// application holds the fully wired dependency graph and the long
// running components the server owns.
type application struct {
	cfg       *config.Config
	logger    *slog.Logger
	server    *http.Server
	processor *task.TaskProcessor
	scheduler *cron.Cron
	cache     *cache.StatsCache
}

// newApplication wires stores, services, handlers, the task processor,
// and the maintenance scheduler. It does not start anything.
func newApplication(cfg *config.Config, appLogger *slog.Logger, db *sql.DB) (*application, error) {
	// Stores.
	taskStore := postgres.NewPostgresTaskStore(db)
	userStore := postgres.NewPostgresUserStore(db, 0)

	// Auth.
	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	passwordVerifier := auth.NewBcryptVerifier()

	// Handler registry with the built-in task types.
	registry := task.NewRegistry()
	webhook := handlers.NewWebhookHandler(nil, appLogger)
	if err := registry.Register(handlers.TaskTypeWebhookDelivery, webhook); err != nil {
		return nil, fmt.Errorf("failed to register task handlers: %w", err)
	}

	// Lifecycle events fan out to logs and prometheus.
	emitter := events.NewInMemoryEventEmitter(appLogger)
	emitter.RegisterHandler(events.NewLoggingHandler(appLogger))
	emitter.RegisterHandler(events.NewMetricsHandler())

	// Task processor.
	retry := task.RetryPolicy{
		BaseDelay:  time.Duration(cfg.Task.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Task.Retry.MaxDelayMS) * time.Millisecond,
		Multiplier: cfg.Task.Retry.Multiplier,
		Jitter:     cfg.Task.Retry.Jitter,
	}
	breakers := task.NewBreakerSet(
		cfg.Task.Breaker.FailureThreshold,
		time.Duration(cfg.Task.Breaker.CooldownS)*time.Second,
	)
	processor := task.NewTaskProcessor(
		taskStore,
		registry,
		breakers,
		retry,
		task.ProcessorConfig{
			WorkerCount:      cfg.Task.WorkerCount,
			PollInterval:     time.Duration(cfg.Task.PollIntervalMS) * time.Millisecond,
			ClaimBatchSize:   cfg.Task.ClaimBatchSize,
			ExecutionTimeout: time.Duration(cfg.Task.ExecutionTimeoutS) * time.Second,
			ShutdownGrace:    time.Duration(cfg.Task.ShutdownGraceS) * time.Second,
			StuckTaskAge:     time.Duration(cfg.Task.StuckTaskAgeMinutes) * time.Minute,
		},
		emitter,
		appLogger,
	)

	// Optional redis-backed stats cache.
	var statsCache *cache.StatsCache
	var adminCache service.StatsCache
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		statsCache, err = cache.NewStatsCache(
			ctx,
			cfg.Redis.Addr,
			time.Duration(cfg.Redis.StatsTTLMS)*time.Millisecond,
			appLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		adminCache = statsCache
	}

	// Services.
	userService, err := service.NewUserService(db, userStore, jwtService, passwordVerifier, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create user service: %w", err)
	}
	taskService, err := service.NewTaskService(taskStore, registry, cfg.Task.DefaultMaxAttempts, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	adminService, err := service.NewAdminService(taskStore, adminCache, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin service: %w", err)
	}

	// HTTP surface.
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	router := newRouter(routerDeps{
		authHandler:    api.NewAuthHandler(userService),
		taskHandler:    api.NewTaskHandler(taskService),
		adminHandler:   api.NewAdminHandler(adminService),
		healthHandler:  api.NewHealthHandler(db),
		authMiddleware: authMiddleware,
	})

	app := &application{
		cfg:    cfg,
		logger: appLogger.With("component", "application"),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		processor: processor,
		cache:     statsCache,
	}

	if cfg.Cleanup.Schedule != "" {
		scheduler, err := newCleanupScheduler(cfg, adminService, appLogger)
		if err != nil {
			return nil, err
		}
		app.scheduler = scheduler
	}

	return app, nil
}

// newCleanupScheduler builds the cron scheduler that periodically
// removes old completed tasks.
func newCleanupScheduler(
	cfg *config.Config,
	adminService *service.AdminService,
	appLogger *slog.Logger,
) (*cron.Cron, error) {
	scheduler := cron.New()
	cleanupLogger := appLogger.With("component", "cleanup_scheduler")

	_, err := scheduler.AddFunc(cfg.Cleanup.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		result, err := adminService.ClearCompleted(ctx, cfg.Cleanup.OlderThanDays, false)
		if err != nil {
			cleanupLogger.Error("scheduled cleanup failed", "error", err)
			return
		}
		cleanupLogger.Info("scheduled cleanup finished",
			"removed", result.Count,
			"cutoff", result.Cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
	}

	return scheduler, nil
}

// run starts the processor, the scheduler, and the HTTP server, then
// blocks until a shutdown signal arrives and everything has drained.
func (a *application) run() error {
	if err := a.processor.Start(); err != nil {
		return fmt.Errorf("failed to start task processor: %w", err)
	}
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		a.shutdown()
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-quit:
		a.logger.Info("shutdown signal received", "signal", sig.String())
		a.shutdown()
		return nil
	}
}

// shutdown stops accepting new requests, then drains background
// components in dependency order.
func (a *application) shutdown() {
	grace := time.Duration(a.cfg.Task.ShutdownGraceS) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
	}

	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}

	a.processor.Stop()

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
}
