package job

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/models"
)

// MemoryRegistry keeps jobs in process memory. Records never leave the lock;
// readers get copies.
type MemoryRegistry struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.GenerationJob
	now  func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[uuid.UUID]*models.GenerationJob),
		now:  time.Now,
	}
}

func (r *MemoryRegistry) CreatePending(_ context.Context, spec Spec) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := newJob(spec, r.now().UTC())
	r.jobs[j.ID] = j
	return j.ID, nil
}

func (r *MemoryRegistry) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return false, apperr.NotFoundf("job %s", id)
	}
	if j.Status != models.JobStatusPending {
		return false, nil
	}
	now := r.now().UTC()
	j.Status = models.JobStatusProcessing
	j.StartedAt = &now
	return true, nil
}

func (r *MemoryRegistry) Complete(_ context.Context, id uuid.UUID, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, err := r.processingLocked(id, models.JobStatusCompleted)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	j.Status = models.JobStatusCompleted
	j.Content = res.Content
	if res.Usage != nil {
		u := *res.Usage
		j.Usage = &u
	}
	j.CompletedAt = &now
	return nil
}

func (r *MemoryRegistry) Fail(_ context.Context, id uuid.UUID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, err := r.processingLocked(id, models.JobStatusFailed)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	j.Status = models.JobStatusFailed
	j.Error = failureMessage(msg)
	j.CompletedAt = &now
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, apperr.NotFoundf("job %s", id)
	}
	return j.Clone(), nil
}

func (r *MemoryRegistry) List(_ context.Context, f ListFilter) ([]models.GenerationJob, error) {
	r.mu.Lock()
	out := make([]models.GenerationJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		if f.CreatedBy != "" && j.CreatedBy != f.CreatedBy {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, *j.Clone())
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b models.GenerationJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	limit, offset := pageBounds(f.Limit, f.Offset)
	if offset >= len(out) {
		return []models.GenerationJob{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRegistry) FailStale(_ context.Context, maxAge time.Duration, msg string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	cutoff := now.Add(-maxAge)
	var failed []uuid.UUID
	for id, j := range r.jobs {
		if j.Status != models.JobStatusProcessing || j.StartedAt == nil || !j.StartedAt.Before(cutoff) {
			continue
		}
		j.Status = models.JobStatusFailed
		j.Error = failureMessage(msg)
		j.CompletedAt = &now
		failed = append(failed, id)
	}
	return failed, nil
}

func (r *MemoryRegistry) Ping(context.Context) error { return nil }

func (r *MemoryRegistry) processingLocked(id uuid.UUID, to models.JobStatus) (*models.GenerationJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperr.NotFoundf("job %s", id)
	}
	if j.Status != models.JobStatusProcessing {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	return j, nil
}
