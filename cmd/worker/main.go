package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docgen/internal/app"
	"github.com/nikhilbhutani/docgen/internal/config"
	"github.com/nikhilbhutani/docgen/internal/logging"
	"github.com/nikhilbhutani/docgen/internal/queue"
	"github.com/nikhilbhutani/docgen/internal/queue/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required: the worker shares job state with the API through Postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		return err
	}

	worker, err := a.Worker()
	if err != nil {
		return err
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Generation.Concurrency,
			// In-flight runs get one generation timeout to finish. A run that
			// asynq requeues on shutdown is a no-op since its claim is taken.
			ShutdownTimeout: cfg.Generation.Timeout,
			Logger:          newAsynqLogger(logger),
		},
	)

	registry := queue.NewHandlersRegistry(logger)
	registry.Register(queue.TypeGenerationRun, asynq.HandlerFunc(workers.NewGenerationWorker(worker).ProcessTask))

	reaped := make(chan struct{})
	go func() {
		defer close(reaped)
		a.Reaper().Run(ctx)
	}()
	defer func() {
		stop()
		<-reaped
	}()

	slog.Info("starting worker", "concurrency", cfg.Generation.Concurrency)
	if err := srv.Start(registry.Mux()); err != nil {
		return err
	}
	<-ctx.Done()

	slog.Info("shutting down worker...")
	srv.Shutdown()
	slog.Info("worker stopped")
	return nil
}

type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) asynqLogger {
	return asynqLogger{l: l.With("component", "asynq")}
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
