package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/models"
)

const templateColumns = `id, name, description, category, body, system_instructions, variables,
	model_config, output_format, is_active, is_default, version, created_by, created_at, updated_at`

const versionColumns = `template_id, version_number, body, system_instructions, variables,
	model_config, change_summary, created_by, created_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, t *models.PromptTemplate) error {
	vars, cfg, err := encodeContent(t.Variables, t.ModelConfig)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if t.IsDefault {
		if err := lockDefaults(ctx, tx); err != nil {
			return err
		}
		if err := demote(ctx, tx, t.Category, t.ID); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO prompt_templates (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Name, t.Description, t.Category, t.Body, t.SystemInstructions, vars,
		cfg, t.OutputFormat, t.IsActive, t.IsDefault, t.Version, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	row := s.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM prompt_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("template %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, f StoreFilter) ([]models.PromptTemplate, error) {
	limit := any(nil)
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates
		 WHERE ($1::text = '' OR category = $1) AND (NOT $2::bool OR is_active)
		 ORDER BY updated_at DESC, id
		 LIMIT $3 OFFSET $4`,
		f.Category, f.ActiveOnly, limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []models.PromptTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*models.PromptTemplate, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDefaults(ctx, tx); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM prompt_templates WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("template %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock template: %w", err)
	}

	snapshot, err := mutate(t)
	if err != nil {
		return nil, err
	}

	if snapshot != nil {
		if err := insertVersion(ctx, tx, snapshot); err != nil {
			return nil, err
		}
	}
	if t.IsDefault {
		if err := demote(ctx, tx, t.Category, t.ID); err != nil {
			return nil, err
		}
	}

	vars, cfg, err := encodeContent(t.Variables, t.ModelConfig)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE prompt_templates SET name = $2, description = $3, category = $4, body = $5,
		 system_instructions = $6, variables = $7, model_config = $8, output_format = $9,
		 is_active = $10, is_default = $11, version = $12, updated_at = $13
		 WHERE id = $1`,
		t.ID, t.Name, t.Description, t.Category, t.Body, t.SystemInstructions, vars, cfg,
		t.OutputFormat, t.IsActive, t.IsDefault, t.Version, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM prompt_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("template %s", id)
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, id uuid.UUID) ([]models.TemplateVersion, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+versionColumns+` FROM prompt_template_versions
		 WHERE template_id = $1 ORDER BY version_number DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []models.TemplateVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, id uuid.UUID, number int) (*models.TemplateVersion, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM prompt_template_versions
		 WHERE template_id = $1 AND version_number = $2`, id, number)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("template %s version %d", id, number)
	}
	if err != nil {
		return nil, fmt.Errorf("get version %d: %w", number, err)
	}
	return v, nil
}

func (s *PostgresStore) DefaultForCategory(ctx context.Context, category string) (*models.PromptTemplate, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates
		 WHERE category = $1 AND is_default AND is_active`, category)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("default template for category %q", category)
	}
	if err != nil {
		return nil, fmt.Errorf("get default template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) exists(ctx context.Context, id uuid.UUID) error {
	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM prompt_templates WHERE id = $1)`, id).Scan(&ok); err != nil {
		return fmt.Errorf("check template: %w", err)
	}
	if !ok {
		return apperr.NotFoundf("template %s", id)
	}
	return nil
}

// lockDefaults takes the transaction-scoped lock that orders default
// promotions. It must be acquired before any template row lock.
func lockDefaults(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('prompt_templates.is_default'))`); err != nil {
		return fmt.Errorf("lock template defaults: %w", err)
	}
	return nil
}

// demote clears the default flag of every other template in category.
func demote(ctx context.Context, tx pgx.Tx, category string, keep uuid.UUID) error {
	if _, err := tx.Exec(ctx,
		`UPDATE prompt_templates SET is_default = false
		 WHERE category = $1 AND is_default AND id <> $2`, category, keep); err != nil {
		return fmt.Errorf("demote category default: %w", err)
	}
	return nil
}

func insertVersion(ctx context.Context, tx pgx.Tx, v *models.TemplateVersion) error {
	vars, cfg, err := encodeContent(v.Variables, v.ModelConfig)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO prompt_template_versions (`+versionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.TemplateID, v.VersionNumber, v.Body, v.SystemInstructions, vars, cfg,
		v.ChangeSummary, v.CreatedBy, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert version %d: %w", v.VersionNumber, err)
	}
	return nil
}

func encodeContent(vars []models.VariableSpec, cfg models.ModelConfig) ([]byte, []byte, error) {
	if vars == nil {
		vars = []models.VariableSpec{}
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, nil, fmt.Errorf("encode variables: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("encode model config: %w", err)
	}
	return varsJSON, cfgJSON, nil
}

func scanTemplate(row pgx.Row) (*models.PromptTemplate, error) {
	var (
		t             models.PromptTemplate
		vars, cfgJSON []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Body, &t.SystemInstructions,
		&vars, &cfgJSON, &t.OutputFormat, &t.IsActive, &t.IsDefault, &t.Version, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vars, &t.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if err := json.Unmarshal(cfgJSON, &t.ModelConfig); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}
	return &t, nil
}

func scanVersion(row pgx.Row) (*models.TemplateVersion, error) {
	var (
		v             models.TemplateVersion
		vars, cfgJSON []byte
	)
	err := row.Scan(&v.TemplateID, &v.VersionNumber, &v.Body, &v.SystemInstructions, &vars,
		&cfgJSON, &v.ChangeSummary, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vars, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if err := json.Unmarshal(cfgJSON, &v.ModelConfig); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}
	return &v, nil
}
