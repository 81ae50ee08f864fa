package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

// NewHandlersRegistry returns a registry whose handlers log every task that
// returns an error.
func NewHandlersRegistry(logger *slog.Logger) *HandlersRegistry {
	mux := asynq.NewServeMux()
	mux.Use(logFailures(logger))
	return &HandlersRegistry{mux: mux}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logFailures(logger *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			if err != nil {
				id, _ := asynq.GetTaskID(ctx)
				logger.Error("task failed",
					"type", t.Type(),
					"task_id", id,
					"duration", time.Since(start),
					"error", err,
				)
			}
			return err
		})
	}
}
