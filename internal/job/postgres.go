package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/models"
)

const jobColumns = `id, template_id, template_version, category, variables, missing_required,
	input_text, context, reference_file_ids, language, status, content, error, usage,
	created_by, created_at, started_at, completed_at`

// PostgresRegistry stores jobs in generation_jobs. Transitions are single
// conditional UPDATEs so concurrent workers never interleave.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) CreatePending(ctx context.Context, spec Spec) (uuid.UUID, error) {
	j := newJob(spec, time.Now().UTC())
	vars, err := json.Marshal(j.Variables)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode variables: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO generation_jobs (id, template_id, template_version, category, variables,
		 missing_required, input_text, context, reference_file_ids, language, status, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		j.ID, j.TemplateID, j.TemplateVersion, j.Category, vars, nonNil(j.MissingRequired),
		j.InputText, j.Context, nonNil(j.ReferenceFileIDs), j.Language, j.Status, j.CreatedBy, j.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert job: %w", err)
	}
	return j.ID, nil
}

func (r *PostgresRegistry) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'processing', started_at = now()
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.status(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRegistry) Complete(ctx context.Context, id uuid.UUID, res Result) error {
	var usage []byte
	if res.Usage != nil {
		var err error
		if usage, err = json.Marshal(res.Usage); err != nil {
			return fmt.Errorf("encode usage: %w", err)
		}
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'completed', content = $2, usage = $3, completed_at = now()
		 WHERE id = $1 AND status = 'processing'`, id, res.Content, usage)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.transitionError(ctx, id, models.JobStatusCompleted)
}

func (r *PostgresRegistry) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'failed', error = $2, completed_at = now()
		 WHERE id = $1 AND status = 'processing'`, id, failureMessage(msg))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.transitionError(ctx, id, models.JobStatusFailed)
}

func (r *PostgresRegistry) Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("job %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *PostgresRegistry) List(ctx context.Context, f ListFilter) ([]models.GenerationJob, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
		 WHERE ($1::text = '' OR created_by = $1) AND ($2::text = '' OR status = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		f.CreatedBy, string(f.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []models.GenerationJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *PostgresRegistry) FailStale(ctx context.Context, maxAge time.Duration, msg string) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE generation_jobs SET status = 'failed', error = $2, completed_at = now()
		 WHERE status = 'processing' AND started_at < now() - make_interval(secs => $1::float8)
		 RETURNING id`, maxAge.Seconds(), failureMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect stale jobs: %w", err)
	}
	return ids, nil
}

func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresRegistry) status(ctx context.Context, id uuid.UUID) (models.JobStatus, error) {
	var s models.JobStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM generation_jobs WHERE id = $1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFoundf("job %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return s, nil
}

func (r *PostgresRegistry) transitionError(ctx context.Context, id uuid.UUID, to models.JobStatus) error {
	from, err := r.status(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func scanJob(row pgx.Row) (*models.GenerationJob, error) {
	var (
		j           models.GenerationJob
		vars, usage []byte
	)
	err := row.Scan(&j.ID, &j.TemplateID, &j.TemplateVersion, &j.Category, &vars, &j.MissingRequired,
		&j.InputText, &j.Context, &j.ReferenceFileIDs, &j.Language, &j.Status, &j.Content, &j.Error, &usage,
		&j.CreatedBy, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vars, &j.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if len(usage) > 0 {
		j.Usage = &models.Usage{}
		if err := json.Unmarshal(usage, j.Usage); err != nil {
			return nil, fmt.Errorf("decode usage: %w", err)
		}
	}
	return &j, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
