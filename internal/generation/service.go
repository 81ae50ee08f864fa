package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/auth"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/metrics"
	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

const maxReferenceFiles = 20

type ServiceConfig struct {
	DefaultLanguage string
	DefaultCategory string
}

type Service struct {
	templates  TemplateSource
	registry   job.Registry
	dispatcher Dispatcher
	cfg        ServiceConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(templates TemplateSource, registry job.Registry, dispatcher Dispatcher, cfg ServiceConfig, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = prompt.FreeformCategory
	}
	return &Service{
		templates:  templates,
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}
}

// SubmitRequest asks for one document. Without a template id the active
// default template of Category is used, or the built-in free-form body when
// the category has none.
type SubmitRequest struct {
	TemplateID       *uuid.UUID        `json:"template_id"`
	Category         string            `json:"category" validate:"max=100"`
	Variables        map[string]string `json:"variables"`
	InputText        string            `json:"text_input"`
	Context          string            `json:"context"`
	ReferenceFileIDs []string          `json:"reference_file_ids" validate:"max=20,dive,required"`
	Language         string            `json:"language" validate:"max=35"`
}

type Submission struct {
	JobID           uuid.UUID        `json:"job_id"`
	Status          models.JobStatus `json:"status"`
	MissingRequired []string         `json:"missing_required"`
}

// Submit validates the request, records a pending job and dispatches it.
// Missing required variables do not reject the request; they are reported
// back and rendered as visible markers.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	lang := req.Language
	if strings.TrimSpace(lang) == "" {
		lang = s.cfg.DefaultLanguage
	}
	lang, err := prompt.NormalizeLanguage(lang)
	if err != nil {
		return nil, apperr.Invalid("language", "%q is not a valid language tag", req.Language)
	}
	if len(req.ReferenceFileIDs) > maxReferenceFiles {
		return nil, apperr.Invalid("reference_file_ids", "at most %d reference files are allowed", maxReferenceFiles)
	}
	for i, id := range req.ReferenceFileIDs {
		if strings.TrimSpace(id) == "" {
			return nil, apperr.Invalid(fmt.Sprintf("reference_file_ids[%d]", i), "must not be empty")
		}
	}

	spec := job.Spec{
		InputText:        req.InputText,
		Context:          req.Context,
		ReferenceFileIDs: req.ReferenceFileIDs,
		Language:         lang,
		CreatedBy:        auth.SubjectFromContext(ctx),
	}

	t, err := s.resolveTemplate(ctx, req)
	if err != nil {
		return nil, err
	}

	var specs []models.VariableSpec
	body, system := prompt.FreeformBody, ""
	if t != nil {
		id := t.ID
		spec.TemplateID = &id
		spec.TemplateVersion = t.Version
		spec.Category = t.Category
		specs = t.Variables
		body, system = t.Body, t.SystemInstructions
	} else {
		spec.Category = s.category(req.Category)
	}

	if undeclared := prompt.Undeclared(specs, req.Variables); len(undeclared) > 0 {
		return nil, apperr.Invalid("variables", "undeclared variables: %s", strings.Join(undeclared, ", "))
	}
	res := prompt.ResolveTemplate(body, system, specs, req.Variables)
	spec.Variables = res.Values
	spec.MissingRequired = res.MissingRequired

	if strings.TrimSpace(req.InputText) == "" && len(req.ReferenceFileIDs) == 0 && t == nil {
		return nil, apperr.Invalid("text_input", "a template, text input or reference files are required")
	}

	jobID, err := s.registry.CreatePending(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.JobsSubmitted.Inc()
	}

	if err := s.dispatcher.Dispatch(ctx, jobID); err != nil {
		s.abandon(ctx, jobID, err)
		return nil, fmt.Errorf("dispatch job %s: %w", jobID, err)
	}

	s.logger.Info("generation job submitted",
		"job_id", jobID,
		"template_id", spec.TemplateID,
		"category", spec.Category,
		"missing_required", spec.MissingRequired,
	)
	return &Submission{
		JobID:           jobID,
		Status:          models.JobStatusPending,
		MissingRequired: nonNil(spec.MissingRequired),
	}, nil
}

func (s *Service) resolveTemplate(ctx context.Context, req SubmitRequest) (*models.PromptTemplate, error) {
	if req.TemplateID != nil {
		t, err := s.templates.Get(ctx, *req.TemplateID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Invalid("template_id", "template %s does not exist", *req.TemplateID)
			}
			return nil, fmt.Errorf("load template: %w", err)
		}
		if !t.IsActive {
			return nil, apperr.Invalid("template_id", "template %s is inactive", t.ID)
		}
		return t, nil
	}

	t, err := s.templates.DefaultForCategory(ctx, s.category(req.Category))
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load default template: %w", err)
	}
	return t, nil
}

func (s *Service) category(c string) string {
	if c = strings.TrimSpace(c); c != "" {
		return c
	}
	return s.cfg.DefaultCategory
}

// abandon moves a job that could not be dispatched to failed through the
// regular transitions, so the record never lingers in pending.
func (s *Service) abandon(ctx context.Context, jobID uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	claimed, err := s.registry.Claim(ctx, jobID)
	if err != nil || !claimed {
		s.logger.Error("claim undispatched job", "job_id", jobID, "claimed", claimed, "error", err)
		return
	}
	if err := s.registry.Fail(ctx, jobID, fmt.Sprintf("dispatch failed: %v", cause)); err != nil {
		s.logger.Error("fail undispatched job", "job_id", jobID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.JobsFinished.WithLabelValues(string(models.JobStatusFailed)).Inc()
	}
}

// Get returns a job owned by the caller's subject.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	j, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.VisibleTo(j, auth.SubjectFromContext(ctx)); err != nil {
		return nil, err
	}
	return j, nil
}

// Result returns the content of a completed job.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return j, job.Ready(j)
}

func (s *Service) List(ctx context.Context, f job.ListFilter) ([]models.GenerationJob, error) {
	return s.registry.List(ctx, f)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.registry.Ping(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
