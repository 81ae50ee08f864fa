package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/queue"
)

type GenerationWorker struct {
	worker *generation.Worker
}

func NewGenerationWorker(w *generation.Worker) *GenerationWorker {
	return &GenerationWorker{worker: w}
}

// ProcessTask runs one generation job. Malformed payloads are skipped
// rather than retried.
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.GenerationRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("parse job ID: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing generation job", "job_id", jobID)
	return w.worker.Run(ctx, jobID)
}
