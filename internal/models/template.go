package models

import (
	"time"

	"github.com/google/uuid"
)

// VariableSpec declares one {{name}} placeholder of a template.
type VariableSpec struct {
	Name         string  `json:"name" yaml:"name"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
	Required     bool    `json:"required" yaml:"required"`
	DefaultValue *string `json:"default_value,omitempty" yaml:"default,omitempty"`
}

// HasDefault reports whether a default value is declared.
func (v VariableSpec) HasDefault() bool {
	return v.DefaultValue != nil
}

// ModelConfig selects and tunes the LLM used for a template.
type ModelConfig struct {
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type PromptTemplate struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	Name               string         `json:"name" db:"name"`
	Description        string         `json:"description,omitempty" db:"description"`
	Category           string         `json:"category" db:"category"`
	Body               string         `json:"body" db:"body"`
	SystemInstructions string         `json:"system_instructions,omitempty" db:"system_instructions"`
	Variables          []VariableSpec `json:"variables" db:"variables"`
	ModelConfig        ModelConfig    `json:"model_config" db:"model_config"`
	OutputFormat       string         `json:"output_format" db:"output_format"`
	IsActive           bool           `json:"is_active" db:"is_active"`
	IsDefault          bool           `json:"is_default" db:"is_default"`
	Version            int            `json:"version" db:"version"`
	CreatedBy          string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`

	// Warnings carries advisory validation findings from the last write.
	Warnings []string `json:"warnings,omitempty" db:"-"`
}

// Snapshot captures the versioned content of t at its current version.
func (t *PromptTemplate) Snapshot(changedBy, summary string, at time.Time) TemplateVersion {
	return TemplateVersion{
		TemplateID:         t.ID,
		VersionNumber:      t.Version,
		Body:               t.Body,
		SystemInstructions: t.SystemInstructions,
		Variables:          CloneVariables(t.Variables),
		ModelConfig:        t.ModelConfig,
		ChangeSummary:      summary,
		CreatedBy:          changedBy,
		CreatedAt:          at,
	}
}

// Clone returns a deep copy of t.
func (t *PromptTemplate) Clone() *PromptTemplate {
	c := *t
	c.Variables = CloneVariables(t.Variables)
	c.Warnings = append([]string(nil), t.Warnings...)
	return &c
}

// TemplateVersion is an immutable snapshot of a template's content as it was
// while the template was at VersionNumber.
type TemplateVersion struct {
	TemplateID         uuid.UUID      `json:"template_id" db:"template_id"`
	VersionNumber      int            `json:"version_number" db:"version_number"`
	Body               string         `json:"body" db:"body"`
	SystemInstructions string         `json:"system_instructions,omitempty" db:"system_instructions"`
	Variables          []VariableSpec `json:"variables" db:"variables"`
	ModelConfig        ModelConfig    `json:"model_config" db:"model_config"`
	ChangeSummary      string         `json:"change_summary,omitempty" db:"change_summary"`
	CreatedBy          string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
}

func CloneVariables(in []VariableSpec) []VariableSpec {
	if in == nil {
		return nil
	}
	out := make([]VariableSpec, len(in))
	for i, v := range in {
		out[i] = v
		if v.DefaultValue != nil {
			d := *v.DefaultValue
			out[i].DefaultValue = &d
		}
	}
	return out
}
