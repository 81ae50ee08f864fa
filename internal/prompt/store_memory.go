package prompt

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/models"
)

// MemoryStore keeps templates in process memory under a single lock.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*models.PromptTemplate
	versions  map[uuid.UUID][]models.TemplateVersion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[uuid.UUID]*models.PromptTemplate),
		versions:  make(map[uuid.UUID][]models.TemplateVersion),
	}
}

func (s *MemoryStore) Create(_ context.Context, t *models.PromptTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return apperr.ErrConflict
	}
	if t.IsDefault {
		s.demoteLocked(t.Category, t.ID)
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, apperr.NotFoundf("template %s", id)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f StoreFilter) ([]models.PromptTemplate, error) {
	s.mu.RLock()
	out := make([]models.PromptTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, *t.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.PromptTemplate) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, mutate MutateFunc) (*models.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.templates[id]
	if !ok {
		return nil, apperr.NotFoundf("template %s", id)
	}

	next := cur.Clone()
	snapshot, err := mutate(next)
	if err != nil {
		return nil, err
	}

	if snapshot != nil {
		s.versions[id] = append(s.versions[id], *snapshot)
	}
	if next.IsDefault {
		s.demoteLocked(next.Category, id)
	}
	s.templates[id] = next.Clone()
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return apperr.NotFoundf("template %s", id)
	}
	delete(s.templates, id)
	delete(s.versions, id)
	return nil
}

func (s *MemoryStore) ListVersions(_ context.Context, id uuid.UUID) ([]models.TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.templates[id]; !ok {
		return nil, apperr.NotFoundf("template %s", id)
	}
	history := s.versions[id]
	out := make([]models.TemplateVersion, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		v := history[i]
		v.Variables = models.CloneVariables(v.Variables)
		out = append(out, v)
	}
	return out, nil
}

func (s *MemoryStore) GetVersion(_ context.Context, id uuid.UUID, number int) (*models.TemplateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.templates[id]; !ok {
		return nil, apperr.NotFoundf("template %s", id)
	}
	for _, v := range s.versions[id] {
		if v.VersionNumber == number {
			v.Variables = models.CloneVariables(v.Variables)
			return &v, nil
		}
	}
	return nil, apperr.NotFoundf("template %s version %d", id, number)
}

func (s *MemoryStore) DefaultForCategory(_ context.Context, category string) (*models.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.templates {
		if t.Category == category && t.IsDefault && t.IsActive {
			return t.Clone(), nil
		}
	}
	return nil, apperr.NotFoundf("default template for category %q", category)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// demoteLocked clears IsDefault on every template of category except keep.
func (s *MemoryStore) demoteLocked(category string, keep uuid.UUID) {
	for id, t := range s.templates {
		if id != keep && t.Category == category && t.IsDefault {
			t.IsDefault = false
		}
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
