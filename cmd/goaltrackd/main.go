// Goaltrackd serves the goaltrack API.
//
// It loads configuration, opens the SQLite store, wires the progress, goal
// generation and notification services, and serves them over HTTP. With
// scheduler.mode=inprocess it also runs the notification planning and
// dispatch passes on tickers; with scheduler.mode=temporal those passes are
// left to notify-worker.
//
// Usage:
//
//	# Start server with defaults
//	goaltrackd
//
//	# Configure via environment
//	GOALTRACK_SERVER_HTTP_PORT=9090 GOALTRACK_LLM_PROVIDER=openai goaltrackd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
	apihttp "github.com/fyrsmithlabs/goaltrack/internal/http"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/scheduler"
	"github.com/fyrsmithlabs/goaltrack/internal/services"
	"github.com/fyrsmithlabs/goaltrack/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/goaltrack/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  goaltrackd           Start the goaltrack API server\n")
			fmt.Fprintf(os.Stderr, "  goaltrackd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("goaltrackd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled, then shuts
// everything down within the configured timeout.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting goaltrackd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("scheduler", cfg.Scheduler.Mode),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()),
	)

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}

	reg, err := services.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn(context.Background(), "closing services", zap.Error(err))
		}
	}()

	if err := reg.Templates().Watch(ctx); err != nil {
		logger.Warn(ctx, "template hot reload disabled", zap.Error(err))
	}

	srv, err := apihttp.NewServer(apihttp.Deps{
		Auth:       reg.Auth(),
		Store:      reg.Store(),
		Progress:   reg.Progress(),
		Generator:  reg.Generator(),
		Planner:    reg.Planner(),
		Dispatcher: reg.Dispatcher(),
		Publisher:  reg.Publisher(),
	}, logger.Named("http"), cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	sched, err := startScheduler(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// startScheduler runs the planning and dispatch passes in process when
// configured to. It returns nil for the other modes.
func startScheduler(ctx context.Context, cfg *config.Config, reg services.Registry, logger *logging.Logger) (*scheduler.Scheduler, error) {
	switch cfg.Scheduler.Mode {
	case config.SchedulerInProcess:
	case config.SchedulerTemporal:
		logger.Info(ctx, "notification passes run by notify-worker", zap.String("task_queue", cfg.Temporal.TaskQueue))
		return nil, nil
	default:
		logger.Info(ctx, "notification scheduling disabled")
		return nil, nil
	}

	planner, dispatcher := reg.Planner(), reg.Dispatcher()
	sched, err := scheduler.New(logger.Named("scheduler"),
		scheduler.Job{
			Name:     "plan-notifications",
			Interval: cfg.Scheduler.PlanInterval.Duration(),
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) error {
				res, err := planner.Run(ctx)
				if err == nil {
					logger.Info(ctx, "planning pass finished",
						zap.Int("users", res.ProcessedUsers),
						zap.Int("scheduled", res.Scheduled),
						zap.Int("errors", len(res.Errors)))
				}
				return err
			},
		},
		scheduler.Job{
			Name:     "dispatch-notifications",
			Interval: cfg.Scheduler.DispatchInterval.Duration(),
			Run: func(ctx context.Context) error {
				res, err := dispatcher.Run(ctx)
				if err == nil && res.TotalProcessed > 0 {
					logger.Info(ctx, "dispatch pass finished",
						zap.Int("sent", res.SentCount),
						zap.Int("failed", res.FailedCount))
				}
				return err
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting scheduler: %w", err)
	}
	return sched, nil
}
