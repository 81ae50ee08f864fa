package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

// echoGenerator returns the compiled user prompt as the document.
type echoGenerator struct {
	mu    sync.Mutex
	calls []prompt.Compiled
	cfgs  []models.ModelConfig
}

func (g *echoGenerator) Generate(_ context.Context, p prompt.Compiled, cfg models.ModelConfig) (*Output, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, p)
	g.cfgs = append(g.cfgs, cfg)
	return &Output{Content: p.User, Usage: models.Usage{Provider: "fake", Model: cfg.Model, InputTokens: 3, OutputTokens: 5}}, nil
}

func (g *echoGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type classifiedErr struct {
	msg       string
	transient bool
}

func (e classifiedErr) Error() string   { return e.msg }
func (e classifiedErr) Transient() bool { return e.transient }

type funcGenerator func(ctx context.Context) (*Output, error)

func (f funcGenerator) Generate(ctx context.Context, _ prompt.Compiled, _ models.ModelConfig) (*Output, error) {
	return f(ctx)
}

type recordingDispatcher struct {
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*models.GenerationJob
}

func (n *recordingNotifier) JobFinished(_ context.Context, j *models.GenerationJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, j)
}

type staticExtractor struct {
	text string
	err  error
}

func (e staticExtractor) Extract(context.Context, []string) (string, error) {
	return e.text, e.err
}

type harness struct {
	templates  *prompt.Service
	registry   *job.MemoryRegistry
	dispatcher *recordingDispatcher
	service    *Service
	notifier   *recordingNotifier
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness() *harness {
	h := &harness{
		templates:  prompt.NewService(prompt.NewMemoryStore(), discard()),
		registry:   job.NewMemoryRegistry(),
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
	}
	h.service = NewService(h.templates, h.registry, h.dispatcher, ServiceConfig{}, nil, discard())
	return h
}

func (h *harness) worker(gen Generator, timeout time.Duration, opts ...WorkerOption) *Worker {
	opts = append([]WorkerOption{WithNotifier(h.notifier)}, opts...)
	return NewWorker(h.registry, h.templates, gen, WorkerConfig{Timeout: timeout}, discard(), opts...)
}

func (h *harness) projectTemplate(t *testing.T) *models.PromptTemplate {
	t.Helper()
	tpl, err := h.templates.Create(context.Background(), prompt.CreateRequest{
		Name:      "Project brief",
		Category:  "brief",
		Body:      "Project: {{name}}",
		Variables: []models.VariableSpec{{Name: "name", Required: true}},
	})
	require.NoError(t, err)
	return tpl
}

func (h *harness) submit(t *testing.T, req SubmitRequest) *Submission {
	t.Helper()
	sub, err := h.service.Submit(context.Background(), req)
	require.NoError(t, err)
	return sub
}

func (h *harness) job(t *testing.T, id uuid.UUID) *models.GenerationJob {
	t.Helper()
	j, err := h.registry.Get(context.Background(), id)
	require.NoError(t, err)
	return j
}

func TestEndToEndResolvesVariables(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	gen := &echoGenerator{}

	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID, Variables: map[string]string{"name": "Inventory"}})
	assert.Equal(t, models.JobStatusPending, sub.Status)
	assert.Empty(t, sub.MissingRequired)
	require.Equal(t, []uuid.UUID{sub.JobID}, h.dispatcher.ids)

	require.NoError(t, h.worker(gen, time.Second).Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	assert.Equal(t, models.JobStatusCompleted, j.Status)
	assert.Contains(t, j.Content, "Project: Inventory")
	assert.Contains(t, j.Content, "Write the entire document in English.")
	assert.Empty(t, j.Error)
	require.NotNil(t, j.Usage)
	assert.Equal(t, 5, j.Usage.OutputTokens)

	result, err := h.service.Result(context.Background(), sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, j.Content, result.Content)

	require.Len(t, h.notifier.jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, h.notifier.jobs[0].Status)
}

func TestMissingRequiredVariableStillCompletes(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)

	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID})
	assert.Equal(t, []string{"name"}, sub.MissingRequired)

	require.NoError(t, h.worker(&echoGenerator{}, time.Second).Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	assert.Equal(t, models.JobStatusCompleted, j.Status)
	assert.Contains(t, j.Content, "Project: [name]")
	assert.Equal(t, []string{"name"}, j.MissingRequired)
}

func TestGenerationTimeout(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID, Variables: map[string]string{"name": "x"}})

	// Ignores its context entirely.
	slow := funcGenerator(func(context.Context) (*Output, error) {
		time.Sleep(time.Second)
		return &Output{Content: "late"}, nil
	})
	require.NoError(t, h.worker(slow, 20*time.Millisecond).Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	assert.Equal(t, models.JobStatusFailed, j.Status)
	assert.Contains(t, j.Error, "timed out")
	assert.Empty(t, j.Content)

	_, err := h.service.Result(context.Background(), sub.JobID)
	assert.ErrorIs(t, err, apperr.ErrJobFailed)
}

func TestGeneratorFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
		want string
	}{
		{"error", funcGenerator(func(context.Context) (*Output, error) {
			return nil, errors.New("provider quota exceeded")
		}), "generate: provider quota exceeded"},
		{"transient", funcGenerator(func(context.Context) (*Output, error) {
			return nil, fmt.Errorf("llm chat: %w", classifiedErr{msg: "openai: status 503", transient: true})
		}), "transient generation error: generate: llm chat: openai: status 503"},
		{"fatal", funcGenerator(func(context.Context) (*Output, error) {
			return nil, fmt.Errorf("llm chat: %w", classifiedErr{msg: "openai: status 401"})
		}), "fatal generation error: generate: llm chat: openai: status 401"},
		{"empty content", funcGenerator(func(context.Context) (*Output, error) {
			return &Output{Content: "  \n"}, nil
		}), "generation returned empty content"},
		{"panic", funcGenerator(func(context.Context) (*Output, error) {
			panic("nil map")
		}), "generator panicked: nil map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tpl := h.projectTemplate(t)
			sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID, Variables: map[string]string{"name": "x"}})

			require.NoError(t, h.worker(tt.gen, time.Second).Run(context.Background(), sub.JobID))

			j := h.job(t, sub.JobID)
			assert.Equal(t, models.JobStatusFailed, j.Status)
			assert.Contains(t, j.Error, tt.want)
			require.Len(t, h.notifier.jobs, 1)
			assert.Equal(t, models.JobStatusFailed, h.notifier.jobs[0].Status)
		})
	}
}

func TestRunSkipsJobClaimedElsewhere(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID})

	claimed, err := h.registry.Claim(context.Background(), sub.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	gen := &echoGenerator{}
	require.NoError(t, h.worker(gen, time.Second).Run(context.Background(), sub.JobID))
	assert.Zero(t, gen.callCount())
	assert.Equal(t, models.JobStatusProcessing, h.job(t, sub.JobID).Status)
}

func TestRunUsesPinnedTemplateVersion(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID, Variables: map[string]string{"name": "Inventory"}})

	body := "Product: {{name}}"
	_, err := h.templates.Update(context.Background(), tpl.ID, prompt.UpdateRequest{Body: &body})
	require.NoError(t, err)

	require.NoError(t, h.worker(&echoGenerator{}, time.Second).Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	assert.Equal(t, 1, j.TemplateVersion)
	assert.Contains(t, j.Content, "Project: Inventory")
	assert.NotContains(t, j.Content, "Product:")
}

func TestRunFailsWhenTemplateDeleted(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID})
	require.NoError(t, h.templates.Delete(context.Background(), tpl.ID))

	require.NoError(t, h.worker(&echoGenerator{}, time.Second).Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	assert.Equal(t, models.JobStatusFailed, j.Status)
	assert.Equal(t, "template no longer exists", j.Error)
}

func TestRunFoldsReferencesIntoPrompt(t *testing.T) {
	h := newHarness()
	sub := h.submit(t, SubmitRequest{
		InputText:        "Warehouse stock tracking",
		ReferenceFileIDs: []string{"notes.md"},
	})

	gen := &echoGenerator{}
	w := h.worker(gen, time.Second, WithReferences(staticExtractor{text: "### File: notes.md\nTwo sites."}))
	require.NoError(t, w.Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	require.Equal(t, models.JobStatusCompleted, j.Status)
	assert.Nil(t, j.TemplateID)
	assert.Contains(t, j.Content, prompt.FreeformBody)
	assert.Contains(t, j.Content, "## User Requirements\nWarehouse stock tracking")
	assert.Contains(t, j.Content, "## Reference Materials\n### File: notes.md\nTwo sites.")
}

func TestRunFailsOnExtractionError(t *testing.T) {
	h := newHarness()
	sub := h.submit(t, SubmitRequest{ReferenceFileIDs: []string{"scan.pdf"}})

	extractErr := &apperr.ExtractionError{FileID: "scan.pdf", Err: errors.New("no text could be extracted")}
	w := h.worker(&echoGenerator{}, time.Second, WithReferences(staticExtractor{err: extractErr}))
	require.NoError(t, w.Run(context.Background(), sub.JobID))

	j := h.job(t, sub.JobID)
	assert.Equal(t, models.JobStatusFailed, j.Status)
	assert.Contains(t, j.Error, "extract reference scan.pdf")
}

func TestSubmitUsesCategoryDefault(t *testing.T) {
	h := newHarness()
	tpl, err := h.templates.Create(context.Background(), prompt.CreateRequest{
		Name:        "Release notes",
		Category:    "release_notes",
		Body:        "Release notes for {{product}}",
		Variables:   []models.VariableSpec{{Name: "product", Required: true}},
		ModelConfig: &models.ModelConfig{Model: "gpt-4.1", Temperature: 0.3},
		IsDefault:   true,
	})
	require.NoError(t, err)

	sub := h.submit(t, SubmitRequest{Category: "release_notes", Variables: map[string]string{"product": "Atlas"}})
	j := h.job(t, sub.JobID)
	require.NotNil(t, j.TemplateID)
	assert.Equal(t, tpl.ID, *j.TemplateID)
	assert.Equal(t, "release_notes", j.Category)

	gen := &echoGenerator{}
	require.NoError(t, h.worker(gen, time.Second).Run(context.Background(), sub.JobID))
	require.Len(t, gen.cfgs, 1)
	assert.Equal(t, "gpt-4.1", gen.cfgs[0].Model)
	assert.Contains(t, h.job(t, sub.JobID).Content, "Release notes for Atlas")
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	missing := uuid.New()

	inactive, err := h.templates.Create(context.Background(), prompt.CreateRequest{
		Name: "Old", Category: "brief", Body: "Old", IsActive: new(bool),
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{"undeclared variable", SubmitRequest{TemplateID: &tpl.ID, Variables: map[string]string{"nme": "typo"}}, "variables"},
		{"bad language", SubmitRequest{TemplateID: &tpl.ID, Language: "not a tag!"}, "language"},
		{"unknown template", SubmitRequest{TemplateID: &missing}, "template_id"},
		{"inactive template", SubmitRequest{TemplateID: &inactive.ID}, "template_id"},
		{"nothing to generate from", SubmitRequest{Category: "empty"}, "text_input"},
		{"blank reference id", SubmitRequest{InputText: "x", ReferenceFileIDs: []string{" "}}, "reference_file_ids[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.Submit(context.Background(), tt.req)
			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	jobs, err := h.registry.List(context.Background(), job.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitNormalizesLanguage(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)

	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID, Language: "pt-br"})
	assert.Equal(t, "pt-BR", h.job(t, sub.JobID).Language)

	sub = h.submit(t, SubmitRequest{TemplateID: &tpl.ID})
	assert.Equal(t, "en", h.job(t, sub.JobID).Language)
}

func TestDispatchFailureFailsJob(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	h.dispatcher.err = errors.New("redis unavailable")

	_, err := h.service.Submit(context.Background(), SubmitRequest{TemplateID: &tpl.ID})
	require.Error(t, err)

	jobs, err := h.registry.List(context.Background(), job.ListFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "redis unavailable")
}

func TestResultBeforeCompletion(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	sub := h.submit(t, SubmitRequest{TemplateID: &tpl.ID})

	_, err := h.service.Result(context.Background(), sub.JobID)
	assert.ErrorIs(t, err, apperr.ErrNotReady)

	_, err = h.service.Result(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocalDispatcherRunsJobs(t *testing.T) {
	h := newHarness()
	tpl := h.projectTemplate(t)
	gen := &echoGenerator{}
	local := NewLocalDispatcher(h.worker(gen, time.Second), 2, discard())
	svc := NewService(h.templates, h.registry, local, ServiceConfig{}, nil, discard())

	var ids []uuid.UUID
	for i := range 5 {
		sub, err := svc.Submit(context.Background(), SubmitRequest{
			TemplateID: &tpl.ID,
			Variables:  map[string]string{"name": strings.Repeat("x", i+1)},
		})
		require.NoError(t, err)
		ids = append(ids, sub.JobID)
	}
	require.NoError(t, local.Close(context.Background()))

	for _, id := range ids {
		assert.Equal(t, models.JobStatusCompleted, h.job(t, id).Status)
	}
	assert.Equal(t, 5, gen.callCount())

	err := local.Dispatch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}
