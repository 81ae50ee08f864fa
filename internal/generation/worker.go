package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/metrics"
	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

const (
	msgTemplateGone = "template no longer exists"
	msgEmptyContent = "generation returned empty content"
)

type WorkerConfig struct {
	Timeout time.Duration
}

// Worker executes one job from claim to a terminal state.
type Worker struct {
	registry   job.Registry
	templates  TemplateSource
	references ReferenceExtractor
	generator  Generator
	timeout    time.Duration
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type WorkerOption func(*Worker)

func WithNotifier(n Notifier) WorkerOption {
	return func(w *Worker) { w.notifier = n }
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithReferences(r ReferenceExtractor) WorkerOption {
	return func(w *Worker) { w.references = r }
}

func NewWorker(registry job.Registry, templates TemplateSource, generator Generator, cfg WorkerConfig, logger *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		registry:  registry,
		templates: templates,
		generator: generator,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
	if w.timeout <= 0 {
		w.timeout = 2 * time.Minute
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run claims the job and drives it to completed or failed. A job claimed
// elsewhere is left alone. Generation failures are recorded on the job; the
// returned error only reports registry failures.
func (w *Worker) Run(ctx context.Context, jobID uuid.UUID) (err error) {
	claimed, err := w.registry.Claim(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		w.logger.Debug("job not claimable, skipping", "job_id", jobID)
		return nil
	}

	start := time.Now()
	// Terminal writes must land even when the run context is gone.
	finishCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("generation panicked", "job_id", jobID, "panic", r)
			err = w.fail(finishCtx, jobID, fmt.Sprintf("generation panicked: %v", r), start)
		}
	}()

	j, err := w.registry.Get(ctx, jobID)
	if err != nil {
		return w.fail(finishCtx, jobID, fmt.Sprintf("load job: %v", err), start)
	}

	out, failure := w.execute(ctx, j)
	if failure != "" {
		return w.fail(finishCtx, jobID, failure, start)
	}

	usage := out.Usage
	if err := w.registry.Complete(finishCtx, jobID, job.Result{Content: out.Content, Usage: &usage}); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}

	w.logger.Info("generation completed",
		"job_id", jobID,
		"provider", usage.Provider,
		"model", usage.Model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration", time.Since(start),
	)
	if w.metrics != nil {
		w.metrics.GenerationTokens.WithLabelValues(usage.Provider, "input").Add(float64(usage.InputTokens))
		w.metrics.GenerationTokens.WithLabelValues(usage.Provider, "output").Add(float64(usage.OutputTokens))
	}
	w.finished(finishCtx, jobID, models.JobStatusCompleted, start)
	return nil
}

// execute returns either the generated output or a failure message for the
// job record.
func (w *Worker) execute(ctx context.Context, j *models.GenerationJob) (*Output, string) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	body, system, specs, modelCfg, err := w.loadTemplate(runCtx, j)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, msgTemplateGone
		}
		return nil, w.failureFor(runCtx, "load template", err)
	}

	var references string
	if len(j.ReferenceFileIDs) > 0 {
		if w.references == nil {
			return nil, "reference files supplied but no reference storage is configured"
		}
		references, err = w.references.Extract(runCtx, j.ReferenceFileIDs)
		if err != nil {
			return nil, w.failureFor(runCtx, "extract references", err)
		}
	}

	res := prompt.ResolveTemplate(body, system, specs, j.Variables)
	compiled := prompt.Compile(prompt.CompileInput{
		Body:               res.Body,
		SystemInstructions: res.SystemInstructions,
		InputText:          j.InputText,
		Context:            j.Context,
		References:         references,
		Language:           j.Language,
	})
	w.logger.Debug("prompt compiled", "job_id", j.ID, "estimated_tokens", compiled.EstimatedTokens)

	out, err := w.generate(runCtx, compiled, modelCfg)
	if err != nil {
		return nil, w.failureFor(runCtx, "generate", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, msgEmptyContent
	}
	return out, ""
}

// generate abandons a generator that ignores its context once the deadline
// passes.
func (w *Worker) generate(ctx context.Context, p prompt.Compiled, cfg models.ModelConfig) (*Output, error) {
	type result struct {
		out *Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		out, err := w.generator.Generate(ctx, p, cfg)
		if err == nil && out == nil {
			out = &Output{}
		}
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) loadTemplate(ctx context.Context, j *models.GenerationJob) (body, system string, specs []models.VariableSpec, cfg models.ModelConfig, err error) {
	if j.TemplateID == nil {
		// A recorded version with no template id means the template was
		// deleted after submission.
		if j.TemplateVersion > 0 {
			return "", "", nil, cfg, apperr.ErrNotFound
		}
		return prompt.FreeformBody, "", nil, cfg, nil
	}
	v, err := w.templates.GetVersion(ctx, *j.TemplateID, j.TemplateVersion)
	if err != nil {
		return "", "", nil, cfg, err
	}
	return v.Body, v.SystemInstructions, v.Variables, v.ModelConfig, nil
}

func (w *Worker) failureFor(ctx context.Context, step string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("generation timed out after %s", w.timeout)
	}
	if errors.Is(err, context.Canceled) {
		return "generation interrupted: worker shutting down"
	}
	var ce ClassifiedError
	if errors.As(err, &ce) {
		kind := "fatal"
		if ce.Transient() {
			kind = "transient"
		}
		return fmt.Sprintf("%s generation error: %s: %v", kind, step, err)
	}
	return fmt.Sprintf("%s: %v", step, err)
}

func (w *Worker) fail(ctx context.Context, jobID uuid.UUID, msg string, start time.Time) error {
	if err := w.registry.Fail(ctx, jobID, msg); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	w.logger.Warn("generation failed", "job_id", jobID, "error", msg, "duration", time.Since(start))
	w.finished(ctx, jobID, models.JobStatusFailed, start)
	return nil
}

func (w *Worker) finished(ctx context.Context, jobID uuid.UUID, status models.JobStatus, start time.Time) {
	if w.metrics != nil {
		w.metrics.JobsFinished.WithLabelValues(string(status)).Inc()
		w.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}
	if w.notifier == nil {
		return
	}
	j, err := w.registry.Get(ctx, jobID)
	if err != nil {
		w.logger.Error("load finished job for notification", "job_id", jobID, "error", err)
		return
	}
	w.notifier.JobFinished(ctx, j)
}
