package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/docgen/internal/api"
	"github.com/nikhilbhutani/docgen/internal/app"
	"github.com/nikhilbhutani/docgen/internal/config"
	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/logging"
	"github.com/nikhilbhutani/docgen/internal/queue"
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
		slog.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
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

	var (
		dispatcher generation.Dispatcher
		local      *generation.LocalDispatcher
	)
	executor := a.Executor()
	switch executor {
	case config.ExecutorAsynq:
		client := queue.NewClient(cfg.Redis, cfg.Generation.Timeout)
		defer client.Close()
		dispatcher = client
	default:
		worker, err := a.Worker()
		if err != nil {
			return err
		}
		local = generation.NewLocalDispatcher(worker, cfg.Generation.Concurrency, logger)
		dispatcher = local

		// With the local executor this process owns every run, so it also
		// reaps the runs a previous instance left behind. The sweep must end
		// before a.Close shuts the notifier it reports to.
		reaped := make(chan struct{})
		go func() {
			defer close(reaped)
			a.Reaper().Run(ctx)
		}()
		defer func() {
			stop()
			<-reaped
		}()
	}

	jobs := generation.NewService(a.Templates, a.Registry, dispatcher, generation.ServiceConfig{
		DefaultLanguage: cfg.Generation.DefaultLanguage,
		DefaultCategory: cfg.Generation.DefaultCategory,
	}, a.Metrics, logger)

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Templates: a.Templates,
		Jobs:      jobs,
		Exports:   a.Exports(),
		Metrics:   a.Metrics,
		Logger:    logger,
		Models:    a.Models(),
		Checks:    a.Checks(),
	})
	go router.Limiter().Cleanup(ctx.Done())

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "executor", executor)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if local != nil {
		if err := local.Close(shutdownCtx); err != nil {
			slog.Warn("in-flight jobs interrupted", "error", err)
		}
	}
	slog.Info("server stopped")
	return nil
}
