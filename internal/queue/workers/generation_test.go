package workers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/internal/prompt"
	"github.com/nikhilbhutani/docgen/internal/queue"
)

type constGenerator string

func (g constGenerator) Generate(context.Context, prompt.Compiled, models.ModelConfig) (*generation.Output, error) {
	return &generation.Output{Content: string(g)}, nil
}

func TestGenerationWorkerProcessTask(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := job.NewMemoryRegistry()
	templates := prompt.NewService(prompt.NewMemoryStore(), logger)
	w := NewGenerationWorker(generation.NewWorker(registry, templates, constGenerator("# Done"),
		generation.WorkerConfig{Timeout: time.Second}, logger))

	id, err := registry.CreatePending(context.Background(), job.Spec{InputText: "x", Language: "en"})
	require.NoError(t, err)

	payload, err := json.Marshal(queue.GenerationRunPayload{JobID: id.String()})
	require.NoError(t, err)
	require.NoError(t, w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeGenerationRun, payload)))

	j, err := registry.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, j.Status)
	assert.Equal(t, "# Done", j.Content)
}

func TestGenerationWorkerSkipsMalformedPayloads(t *testing.T) {
	w := NewGenerationWorker(nil)

	for _, body := range []string{"{", `{"job_id":"nope"}`} {
		err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeGenerationRun, []byte(body)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	}
}
