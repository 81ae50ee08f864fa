// Package job tracks generation jobs through pending, processing, completed
// and failed. Claim is the single compare-and-swap that hands a job to a
// worker; completed and failed are terminal.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/models"
)

// ErrInvalidTransition is returned when a transition is attempted from a
// state that does not allow it. It signals a logic error in the caller.
var ErrInvalidTransition = errors.New("invalid job transition")

// Spec is everything a job needs at creation time.
type Spec struct {
	TemplateID       *uuid.UUID
	TemplateVersion  int
	Category         string
	Variables        map[string]string
	MissingRequired  []string
	InputText        string
	Context          string
	ReferenceFileIDs []string
	Language         string
	CreatedBy        string
}

// Result is what a successful generation stores.
type Result struct {
	Content string
	Usage   *models.Usage
}

type ListFilter struct {
	CreatedBy string
	Status    models.JobStatus
	Limit     int
	Offset    int
}

// Registry owns job records. Every mutation is keyed by job id and atomic
// per job.
type Registry interface {
	CreatePending(ctx context.Context, spec Spec) (uuid.UUID, error)
	// Claim moves a pending job to processing. It returns false when the
	// job is in any other state.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, res Result) error
	Fail(ctx context.Context, id uuid.UUID, msg string) error
	Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	List(ctx context.Context, f ListFilter) ([]models.GenerationJob, error)
	// FailStale fails every processing job started more than maxAge ago and
	// returns their ids. Age is measured on the clock that stamped
	// started_at, never the caller's.
	FailStale(ctx context.Context, maxAge time.Duration, msg string) ([]uuid.UUID, error)
	Ping(ctx context.Context) error
}

// Ready reports whether j has content: apperr.ErrNotReady while it is still
// pending or processing, apperr.ErrJobFailed once it failed.
func Ready(j *models.GenerationJob) error {
	switch j.Status {
	case models.JobStatusCompleted:
		return nil
	case models.JobStatusFailed:
		return fmt.Errorf("job %s: %s: %w", j.ID, j.Error, apperr.ErrJobFailed)
	default:
		return fmt.Errorf("job %s is %s: %w", j.ID, j.Status, apperr.ErrNotReady)
	}
}

// VisibleTo hides jobs created by someone other than subject behind
// apperr.ErrNotFound. An empty subject, as when auth is disabled, sees every
// job, matching ListFilter.CreatedBy.
func VisibleTo(j *models.GenerationJob, subject string) error {
	if subject != "" && j.CreatedBy != subject {
		return apperr.NotFoundf("job %s", j.ID)
	}
	return nil
}

const unknownFailure = "generation failed for an unknown reason"

func failureMessage(msg string) string {
	if msg == "" {
		return unknownFailure
	}
	return msg
}

func newJob(spec Spec, now time.Time) *models.GenerationJob {
	vars := make(map[string]string, len(spec.Variables))
	for k, v := range spec.Variables {
		vars[k] = v
	}
	j := &models.GenerationJob{
		ID:               uuid.New(),
		TemplateVersion:  spec.TemplateVersion,
		Category:         spec.Category,
		Variables:        vars,
		MissingRequired:  append([]string(nil), spec.MissingRequired...),
		InputText:        spec.InputText,
		Context:          spec.Context,
		ReferenceFileIDs: append([]string(nil), spec.ReferenceFileIDs...),
		Language:         spec.Language,
		Status:           models.JobStatusPending,
		CreatedBy:        spec.CreatedBy,
		CreatedAt:        now,
	}
	if spec.TemplateID != nil {
		id := *spec.TemplateID
		j.TemplateID = &id
	}
	return j
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return limit, max(offset, 0)
}
