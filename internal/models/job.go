package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Usage records what the generation call cost.
type Usage struct {
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
}

type GenerationJob struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	TemplateID       *uuid.UUID        `json:"template_id,omitempty" db:"template_id"`
	TemplateVersion  int               `json:"template_version,omitempty" db:"template_version"`
	Category         string            `json:"category,omitempty" db:"category"`
	Variables        map[string]string `json:"variables" db:"variables"`
	MissingRequired  []string          `json:"missing_required,omitempty" db:"missing_required"`
	InputText        string            `json:"input_text,omitempty" db:"input_text"`
	Context          string            `json:"context,omitempty" db:"context"`
	ReferenceFileIDs []string          `json:"reference_file_ids,omitempty" db:"reference_file_ids"`
	Language         string            `json:"language" db:"language"`
	Status           JobStatus         `json:"status" db:"status"`
	Content          string            `json:"content,omitempty" db:"content"`
	Error            string            `json:"error,omitempty" db:"error"`
	Usage            *Usage            `json:"usage,omitempty" db:"usage"`
	CreatedBy        string            `json:"created_by,omitempty" db:"created_by"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Clone returns a deep copy so callers never share a registry record.
func (j *GenerationJob) Clone() *GenerationJob {
	c := *j
	if j.TemplateID != nil {
		id := *j.TemplateID
		c.TemplateID = &id
	}
	if j.Variables != nil {
		c.Variables = make(map[string]string, len(j.Variables))
		for k, v := range j.Variables {
			c.Variables[k] = v
		}
	}
	c.MissingRequired = append([]string(nil), j.MissingRequired...)
	c.ReferenceFileIDs = append([]string(nil), j.ReferenceFileIDs...)
	if j.Usage != nil {
		u := *j.Usage
		c.Usage = &u
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
