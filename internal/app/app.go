// Package app wires the stores, queues and services shared by the docgen
// binaries from one config.Config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docgen/internal/api/handlers"
	"github.com/nikhilbhutani/docgen/internal/cache"
	"github.com/nikhilbhutani/docgen/internal/config"
	"github.com/nikhilbhutani/docgen/internal/database"
	"github.com/nikhilbhutani/docgen/internal/export"
	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/llm"
	"github.com/nikhilbhutani/docgen/internal/metrics"
	"github.com/nikhilbhutani/docgen/internal/notify"
	"github.com/nikhilbhutani/docgen/internal/prompt"
	"github.com/nikhilbhutani/docgen/internal/reference"
	"github.com/nikhilbhutani/docgen/internal/storage"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Templates *prompt.Service
	Registry  job.Registry
	Notifier  *notify.Dispatcher

	closers []func()
}

// New connects to Postgres and Redis. Without DATABASE_URL templates and jobs
// live in memory; an unreachable Redis disables the export cache and the
// asynq executor.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		a.Templates = prompt.NewService(prompt.NewPostgresStore(db), logger)
		a.Registry = job.NewPostgresRegistry(db)
	} else {
		logger.Warn("DATABASE_URL not set, keeping templates and jobs in memory")
		a.Templates = prompt.NewService(prompt.NewMemoryStore(), logger)
		a.Registry = job.NewMemoryRegistry()
		if err := a.seedMemory(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, running without cache", "error", err)
			rdb.Close()
		} else {
			a.Redis = rdb
			a.closers = append(a.closers, func() { rdb.Close() })
		}
	}

	if cfg.Notify.WebhookURL != "" {
		a.Notifier = notify.NewDispatcher(cfg.Notify.WebhookURL, cfg.Notify.Secret, logger)
		a.closers = append(a.closers, a.Notifier.Close)
	}

	return a, nil
}

// seedMemory loads the built-in templates so a store that starts empty on
// every boot still serves free-form submissions per category.
func (a *App) seedMemory(ctx context.Context) error {
	defs, err := prompt.BuiltinSeed()
	if err != nil {
		return err
	}
	res, err := a.Templates.Seed(ctx, defs)
	if err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}
	a.Logger.Info("seeded built-in templates", "created", res.Created)
	return nil
}

// Models lists the models of the configured providers, or nothing when no
// provider has credentials.
func (a *App) Models() []llm.ModelInfo {
	gw, err := llm.NewGateway(a.Config.LLM)
	if err != nil {
		return nil
	}
	return gw.ListModels()
}

// Migrate applies pending schema migrations. It is a no-op without Postgres.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return database.RunMigrations(ctx, a.DB, database.MigrationSource(a.Config.Database.MigrationsPath))
}

// Executor resolves the configured executor against what is reachable.
// Jobs only cross processes through asynq when both Redis and Postgres are
// available.
func (a *App) Executor() string {
	if a.Config.Generation.Executor != config.ExecutorAsynq {
		return config.ExecutorLocal
	}
	switch {
	case a.Redis == nil:
		a.Logger.Warn("asynq executor needs redis, running jobs in process")
		return config.ExecutorLocal
	case a.DB == nil:
		a.Logger.Warn("asynq executor needs a shared database, running jobs in process")
		return config.ExecutorLocal
	}
	return config.ExecutorAsynq
}

// Worker builds the generation worker over the configured LLM providers and
// reference storage.
func (a *App) Worker() (*generation.Worker, error) {
	gw, err := llm.NewGateway(a.Config.LLM)
	if err != nil {
		return nil, fmt.Errorf("build llm gateway: %w", err)
	}
	gen := llm.NewGenerator(gw, a.Config.LLM.DefaultProvider, a.Config.LLM.DefaultModel)

	opts := []generation.WorkerOption{generation.WithMetrics(a.Metrics)}
	if a.Notifier != nil {
		opts = append(opts, generation.WithNotifier(a.Notifier))
	}
	if store := a.referenceStorage(); store != nil {
		maxBytes := int64(a.Config.Storage.MaxFileMB) << 20
		opts = append(opts, generation.WithReferences(reference.NewExtractor(store, maxBytes)))
	}

	return generation.NewWorker(a.Registry, a.Templates, gen, generation.WorkerConfig{Timeout: a.Config.Generation.Timeout}, a.Logger, opts...), nil
}

func (a *App) referenceStorage() storage.Storage {
	s := a.Config.Storage
	switch {
	case s.LocalDir != "":
		return storage.NewDirStorage(s.LocalDir)
	case s.SupabaseURL != "":
		return storage.NewSupabaseStorage(s.SupabaseURL, s.SupabaseKey, s.Bucket)
	default:
		a.Logger.Warn("no reference storage configured, jobs with reference files will fail")
		return nil
	}
}

// Reaper fails orphaned processing jobs and reports them like any other
// terminal transition.
func (a *App) Reaper() *job.Reaper {
	r := job.NewReaper(a.Registry, a.Config.Generation.Timeout, a.Config.Generation.StaleGrace, a.Logger)
	r.OnReap(func(ids []uuid.UUID) {
		a.Metrics.JobsReaped.Add(float64(len(ids)))
		for range ids {
			a.Metrics.JobsFinished.WithLabelValues("failed").Inc()
		}
		if a.Notifier == nil {
			return
		}
		ctx := context.Background()
		for _, id := range ids {
			j, err := a.Registry.Get(ctx, id)
			if err != nil {
				a.Logger.Error("load reaped job", "job_id", id, "error", err)
				continue
			}
			a.Notifier.JobFinished(ctx, j)
		}
	})
	return r
}

// Exports builds the export service, caching artifacts in Redis when it is
// reachable.
func (a *App) Exports() *export.Service {
	var c export.ArtifactCache
	if a.Redis != nil {
		c = cache.NewCache(a.Redis)
	}
	return export.NewService(a.Registry, c, export.Config{
		CacheTTL:      a.Config.Export.CacheTTL,
		FontPath:      a.Config.Export.FontPath,
		BoldFontPath:  a.Config.Export.BoldFontPath,
		MaxConcurrent: a.Config.Export.MaxConcurrent,
	}, a.Metrics, a.Logger)
}

// Checks lists the dependencies probed by /readyz.
func (a *App) Checks() map[string]handlers.Checker {
	checks := map[string]handlers.Checker{
		"templates": a.Templates,
		"jobs":      a.Registry,
	}
	if a.Redis != nil {
		checks["redis"] = cache.NewCache(a.Redis)
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
