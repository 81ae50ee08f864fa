package prompt

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/models"
)

// StoreFilter narrows List. Zero values match everything; Limit 0 means no
// limit.
type StoreFilter struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// MutateFunc edits a copy of the current template inside the store's write
// transaction. A non-nil snapshot is appended to the version history in the
// same transaction.
type MutateFunc func(t *models.PromptTemplate) (snapshot *models.TemplateVersion, err error)

// Store persists templates and their version history. When a written
// template has IsDefault set, implementations demote every other default of
// its category atomically with the write.
type Store interface {
	Create(ctx context.Context, t *models.PromptTemplate) error
	Get(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error)
	List(ctx context.Context, f StoreFilter) ([]models.PromptTemplate, error)
	Update(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*models.PromptTemplate, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListVersions(ctx context.Context, id uuid.UUID) ([]models.TemplateVersion, error)
	GetVersion(ctx context.Context, id uuid.UUID, number int) (*models.TemplateVersion, error)
	DefaultForCategory(ctx context.Context, category string) (*models.PromptTemplate, error)
	Ping(ctx context.Context) error
}
