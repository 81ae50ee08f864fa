// Package generation accepts document generation requests, records them as
// jobs and runs them to a terminal state in the background.
package generation

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

// Generator turns a compiled prompt into document text.
type Generator interface {
	Generate(ctx context.Context, p prompt.Compiled, cfg models.ModelConfig) (*Output, error)
}

// ClassifiedError is implemented by generator errors that know whether a
// later attempt could succeed. Failed jobs carry the classification in their
// error message.
type ClassifiedError interface {
	error
	Transient() bool
}

type Output struct {
	Content string
	Usage   models.Usage
}

// TemplateSource is the read side of the template store.
type TemplateSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error)
	GetVersion(ctx context.Context, id uuid.UUID, number int) (*models.TemplateVersion, error)
	DefaultForCategory(ctx context.Context, category string) (*models.PromptTemplate, error)
}

// ReferenceExtractor turns stored reference files into prompt text.
type ReferenceExtractor interface {
	Extract(ctx context.Context, fileIDs []string) (string, error)
}

// Notifier is told about every job that reaches a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, j *models.GenerationJob)
}

// Dispatcher hands a pending job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}
