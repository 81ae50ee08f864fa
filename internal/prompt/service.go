package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/auth"
	"github.com/nikhilbhutani/docgen/internal/models"
)

const (
	DefaultOutputFormat = "markdown"
	defaultListLimit    = 20
	maxListLimit        = 100
)

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

type CreateRequest struct {
	Name               string                `json:"name" validate:"required,max=200"`
	Description        string                `json:"description" validate:"max=2000"`
	Category           string                `json:"category" validate:"required,max=100"`
	Body               string                `json:"body" validate:"required"`
	SystemInstructions string                `json:"system_instructions"`
	Variables          []models.VariableSpec `json:"variables" validate:"dive"`
	ModelConfig        *models.ModelConfig   `json:"model_config"`
	OutputFormat       string                `json:"output_format" validate:"max=50"`
	IsActive           *bool                 `json:"is_active"`
	IsDefault          bool                  `json:"is_default"`
}

// UpdateRequest is a patch: nil fields are left unchanged.
type UpdateRequest struct {
	Name               *string                `json:"name" validate:"omitempty,max=200"`
	Description        *string                `json:"description" validate:"omitempty,max=2000"`
	Category           *string                `json:"category" validate:"omitempty,max=100"`
	Body               *string                `json:"body"`
	SystemInstructions *string                `json:"system_instructions"`
	Variables          *[]models.VariableSpec `json:"variables"`
	ModelConfig        *models.ModelConfig    `json:"model_config"`
	OutputFormat       *string                `json:"output_format" validate:"omitempty,max=50"`
	IsActive           *bool                  `json:"is_active"`
	IsDefault          *bool                  `json:"is_default"`
	ChangeSummary      string                 `json:"change_summary" validate:"max=500"`
}

type ListFilter struct {
	Category   string
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.PromptTemplate, error) {
	now := s.now().UTC()
	t := &models.PromptTemplate{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(req.Name),
		Description:        req.Description,
		Category:           strings.TrimSpace(req.Category),
		Body:               req.Body,
		SystemInstructions: req.SystemInstructions,
		Variables:          models.CloneVariables(req.Variables),
		OutputFormat:       req.OutputFormat,
		IsActive:           true,
		IsDefault:          req.IsDefault,
		Version:            1,
		CreatedBy:          auth.SubjectFromContext(ctx),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.ModelConfig != nil {
		t.ModelConfig = *req.ModelConfig
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
	if t.OutputFormat == "" {
		t.OutputFormat = DefaultOutputFormat
	}

	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	t.Warnings = s.warn(t)
	s.logger.Info("template created", "template_id", t.ID, "category", t.Category, "is_default", t.IsDefault)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	return s.store.Get(ctx, id)
}

// List filters by category and activity. With a search term, results are
// ranked by fuzzy match over name, description and category; otherwise the
// most recently updated come first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.PromptTemplate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset := max(f.Offset, 0)

	search := strings.TrimSpace(f.Search)
	if search == "" {
		out, err := s.store.List(ctx, StoreFilter{Category: f.Category, ActiveOnly: f.ActiveOnly, Limit: limit, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list templates: %w", err)
		}
		return out, nil
	}

	all, err := s.store.List(ctx, StoreFilter{Category: f.Category, ActiveOnly: f.ActiveOnly})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	searchStrings := make([]string, len(all))
	for i, t := range all {
		searchStrings[i] = fmt.Sprintf("%s %s %s", t.Name, t.Description, t.Category)
	}
	matches := fuzzy.Find(search, searchStrings)

	ranked := make([]models.PromptTemplate, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, all[m.Index])
	}
	return paginate(ranked, limit, offset), nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.PromptTemplate, error) {
	changedBy := auth.SubjectFromContext(ctx)

	t, err := s.store.Update(ctx, id, func(t *models.PromptTemplate) (*models.TemplateVersion, error) {
		prev := t.Clone()
		applyPatch(t, req)
		if err := validateTemplate(t); err != nil {
			return nil, err
		}

		now := s.now().UTC()
		t.UpdatedAt = now
		if !contentChanged(prev, t) {
			return nil, nil
		}

		summary := req.ChangeSummary
		if summary == "" {
			summary = "Updated template"
		}
		snapshot := prev.Snapshot(changedBy, summary, now)
		t.Version = prev.Version + 1
		return &snapshot, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update template %s: %w", id, err)
	}

	t.Warnings = s.warn(t)
	s.logger.Info("template updated", "template_id", t.ID, "version", t.Version)
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	s.logger.Info("template deleted", "template_id", id)
	return nil
}

// ListVersions returns the retired snapshots of a template, newest first.
func (s *Service) ListVersions(ctx context.Context, id uuid.UUID) ([]models.TemplateVersion, error) {
	return s.store.ListVersions(ctx, id)
}

// GetVersion returns the content a template had at version number. The
// current version is served from the template itself.
func (s *Service) GetVersion(ctx context.Context, id uuid.UUID, number int) (*models.TemplateVersion, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if number == t.Version {
		v := t.Snapshot(t.CreatedBy, "Current version", t.UpdatedAt)
		return &v, nil
	}
	return s.store.GetVersion(ctx, id, number)
}

// RestoreVersion re-applies the content of version number as a new current
// version. History is never rewritten; the state being replaced is
// snapshotted like any other update.
func (s *Service) RestoreVersion(ctx context.Context, id uuid.UUID, number int) (*models.PromptTemplate, error) {
	target, err := s.GetVersion(ctx, id, number)
	if err != nil {
		return nil, err
	}

	changedBy := auth.SubjectFromContext(ctx)
	t, err := s.store.Update(ctx, id, func(t *models.PromptTemplate) (*models.TemplateVersion, error) {
		if t.Version == number {
			return nil, nil
		}
		now := s.now().UTC()
		snapshot := t.Snapshot(changedBy, fmt.Sprintf("Restored from version %d", number), now)

		t.Body = target.Body
		t.SystemInstructions = target.SystemInstructions
		t.Variables = models.CloneVariables(target.Variables)
		t.ModelConfig = target.ModelConfig
		t.Version++
		t.UpdatedAt = now
		return &snapshot, nil
	})
	if err != nil {
		return nil, fmt.Errorf("restore template %s to version %d: %w", id, number, err)
	}

	t.Warnings = s.warn(t)
	s.logger.Info("template restored", "template_id", id, "from_version", number, "version", t.Version)
	return t, nil
}

// DefaultForCategory returns the active default template of category.
func (s *Service) DefaultForCategory(ctx context.Context, category string) (*models.PromptTemplate, error) {
	return s.store.DefaultForCategory(ctx, category)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type PreviewRequest struct {
	Body               string                `json:"body" validate:"required"`
	SystemInstructions string                `json:"system_instructions"`
	Variables          []models.VariableSpec `json:"variables"`
	Values             map[string]string     `json:"values"`
}

type PreviewResult struct {
	Rendered         string   `json:"rendered"`
	RenderedSystem   string   `json:"rendered_system,omitempty"`
	MissingVariables []string `json:"missing_variables"`
}

// Preview resolves an unsaved body. Without declared variables every
// placeholder is treated as a required variable.
func Preview(req PreviewRequest) (*PreviewResult, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, apperr.Invalid("body", "must not be empty")
	}
	specs := req.Variables
	if len(specs) == 0 {
		for _, name := range ExtractVariables(req.Body + "\n" + req.SystemInstructions) {
			specs = append(specs, models.VariableSpec{Name: name, Required: true})
		}
	} else if err := validateVariables(specs); err != nil {
		return nil, err
	}

	r := ResolveTemplate(req.Body, req.SystemInstructions, specs, req.Values)
	missing := r.MissingRequired
	if missing == nil {
		missing = []string{}
	}
	return &PreviewResult{Rendered: r.Body, RenderedSystem: r.SystemInstructions, MissingVariables: missing}, nil
}

func (s *Service) warn(t *models.PromptTemplate) []string {
	warnings := advisories(t)
	for _, w := range warnings {
		s.logger.Warn("template advisory", "template_id", t.ID, "warning", w)
	}
	return warnings
}

func applyPatch(t *models.PromptTemplate, req UpdateRequest) {
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Category != nil {
		t.Category = strings.TrimSpace(*req.Category)
	}
	if req.Body != nil {
		t.Body = *req.Body
	}
	if req.SystemInstructions != nil {
		t.SystemInstructions = *req.SystemInstructions
	}
	if req.Variables != nil {
		t.Variables = models.CloneVariables(*req.Variables)
	}
	if req.ModelConfig != nil {
		t.ModelConfig = *req.ModelConfig
	}
	if req.OutputFormat != nil {
		t.OutputFormat = *req.OutputFormat
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
	if req.IsDefault != nil {
		t.IsDefault = *req.IsDefault
	}
}

// contentChanged reports whether a versioned field differs.
func contentChanged(a, b *models.PromptTemplate) bool {
	return a.Body != b.Body ||
		a.SystemInstructions != b.SystemInstructions ||
		a.ModelConfig != b.ModelConfig ||
		!slices.EqualFunc(a.Variables, b.Variables, equalSpec)
}

func equalSpec(a, b models.VariableSpec) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Required != b.Required {
		return false
	}
	if a.HasDefault() != b.HasDefault() {
		return false
	}
	return !a.HasDefault() || *a.DefaultValue == *b.DefaultValue
}
