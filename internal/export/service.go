// Package export turns the markdown content of a completed job into
// downloadable documents. Rendering is a pure function of the job record, so
// the same job and format always produce the same bytes.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nikhilbhutani/docgen/internal/auth"
	"github.com/nikhilbhutani/docgen/internal/cache"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/metrics"
	"github.com/nikhilbhutani/docgen/internal/models"
)

const maxFilenameRunes = 50

var unsafeFilename = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Artifact is a rendered document.
type Artifact struct {
	Format      Format `json:"format"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type Options struct {
	// FontPath points at a TrueType font used for PDF output. When the file
	// does not exist PDFs fall back to the core fonts, which only cover
	// Windows-1252.
	FontPath string
	// BoldFontPath is the bold face; FontPath is used when it is missing.
	BoldFontPath string
}

// Render converts a completed job into format f.
func Render(j *models.GenerationJob, f Format, opts Options) (*Artifact, error) {
	if err := job.Ready(j); err != nil {
		return nil, err
	}

	ts := j.CreatedAt
	if j.CompletedAt != nil {
		ts = *j.CompletedAt
	}
	doc := Parse(j.Content)

	var (
		data []byte
		err  error
	)
	switch f {
	case FormatDOCX:
		data, err = renderDOCX(doc, ts)
	case FormatPDF:
		data, err = renderPDF(doc, ts, opts)
	case FormatMarkdown:
		data = []byte(j.Content)
	case FormatHTML:
		data, err = renderHTML(j.Content, doc.Title, j.Language)
	default:
		panic("export: unknown format " + string(f))
	}
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Format:      f,
		Filename:    Filename(doc.Title, j.ID) + f.Extension(),
		ContentType: f.ContentType(),
		Data:        data,
	}, nil
}

// Filename turns a document title into a safe file name without extension.
func Filename(title string, id uuid.UUID) string {
	name := unsafeFilename.ReplaceAllString(title, "")
	name = strings.Join(strings.Fields(name), "_")
	if r := []rune(name); len(r) > maxFilenameRunes {
		name = string(r[:maxFilenameRunes])
	}
	if name == "" {
		return "document-" + id.String()[:8]
	}
	return name
}

type JobSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
}

type ArtifactCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Config struct {
	CacheTTL      time.Duration
	FontPath      string
	BoldFontPath  string
	MaxConcurrent int
}

type Service struct {
	jobs    JobSource
	cache   ArtifactCache
	cfg     Config
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService builds an export service. cache may be nil.
func NewService(jobs JobSource, c ArtifactCache, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Service{
		jobs:    jobs,
		cache:   c,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		metrics: m,
		logger:  logger,
	}
}

// Render exports job jobID in the named format.
func (s *Service) Render(ctx context.Context, jobID uuid.UUID, format string) (*Artifact, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.VisibleTo(j, auth.SubjectFromContext(ctx)); err != nil {
		return nil, err
	}
	if err := job.Ready(j); err != nil {
		return nil, err
	}

	key := cacheKey(jobID, f)
	outcome := "none"
	if s.cache != nil {
		var a Artifact
		err := s.cache.Get(ctx, key, &a)
		switch {
		case err == nil:
			s.count(f, "hit")
			return &a, nil
		case errors.Is(err, cache.ErrMiss):
		default:
			s.logger.Warn("export cache read failed", "key", key, "error", err)
		}
		outcome = "miss"
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for render slot: %w", err)
	}
	start := time.Now()
	a, err := Render(j, f, Options{FontPath: s.cfg.FontPath, BoldFontPath: s.cfg.BoldFontPath})
	s.sem.Release(1)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", f, err)
	}
	if s.metrics != nil {
		s.metrics.ExportDuration.WithLabelValues(string(f)).Observe(time.Since(start).Seconds())
	}
	s.count(f, outcome)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, a, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("export cache write failed", "key", key, "error", err)
		}
	}

	s.logger.Info("document exported", "job_id", jobID, "format", f, "bytes", len(a.Data))
	return a, nil
}

func (s *Service) count(f Format, outcome string) {
	if s.metrics != nil {
		s.metrics.ExportsRendered.WithLabelValues(string(f), outcome).Inc()
	}
}

func (s *Service) Formats() []FormatInfo {
	return Formats()
}

func cacheKey(id uuid.UUID, f Format) string {
	return "export:" + id.String() + ":" + string(f)
}
