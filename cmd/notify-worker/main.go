// Package main provides a Temporal worker for the notification workflows.
//
// The worker runs the planning and dispatch passes as Temporal activities
// and, unless -schedules=false, starts the cron workflows that trigger them.
// Starting is idempotent: a cron workflow that is already running is left
// alone.
//
// Usage:
//
//	GOALTRACK_TEMPORAL_HOST_PORT=localhost:7233 \
//	GOALTRACK_EMAIL_ENABLED=true \
//	./notify-worker
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/services"
	"github.com/fyrsmithlabs/goaltrack/internal/telemetry"
	"github.com/fyrsmithlabs/goaltrack/internal/workflows"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/goaltrack/config.yaml)")
	schedules := flag.Bool("schedules", true, "start the cron workflows")
	flag.Parse()

	if err := run(*configPath, *schedules); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, startSchedules bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logCfg, err := logging.FromAppConfig(cfg.Logging, "goaltrack-notify-worker")
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "notification worker starting",
		zap.String("temporal_host", cfg.Temporal.HostPort),
		zap.String("namespace", cfg.Temporal.Namespace),
	)
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}

	reg, err := services.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() { _ = reg.Close() }()

	if err := reg.Templates().Watch(ctx); err != nil {
		logger.Warn(ctx, "template hot reload disabled", zap.Error(err))
	}

	acts, err := workflows.NewActivities(reg.Planner(), reg.Dispatcher())
	if err != nil {
		return err
	}

	c, err := workflows.Dial(cfg.Temporal)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info(ctx, "temporal client connected", zap.String("host", cfg.Temporal.HostPort))

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	workflows.Register(w, acts)

	logger.Info(ctx, "worker configured", zap.String("task_queue", cfg.Temporal.TaskQueue))

	if startSchedules {
		started, err := workflows.StartSchedules(ctx, c, cfg.Temporal)
		if err != nil {
			return err
		}
		logger.Info(ctx, "cron workflows ready", zap.Strings("started", started))
	}

	workerErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "worker starting")
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
		// InterruptCh sees the same signal; wait for Run to drain.
		if err := <-workerErrors; err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	}

	logger.Info(context.Background(), "worker stopped gracefully")
	return nil
}
