package handlers

import (
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/auth"
	"github.com/nikhilbhutani/docgen/internal/export"
	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/models"
)

type JobHandler struct {
	jobs    *generation.Service
	exports *export.Service
}

func NewJobHandler(jobs *generation.Service, exports *export.Service) *JobHandler {
	return &JobHandler{jobs: jobs, exports: exports}
}

// Submit accepts a generation request and answers before any work is done.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req generation.SubmitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+sub.JobID.String())
	writeJSON(w, http.StatusAccepted, sub)
}

type jobStatus struct {
	ID              uuid.UUID        `json:"id"`
	Status          models.JobStatus `json:"status"`
	Error           string           `json:"error,omitempty"`
	TemplateID      *uuid.UUID       `json:"template_id,omitempty"`
	TemplateVersion int              `json:"template_version,omitempty"`
	Category        string           `json:"category,omitempty"`
	Language        string           `json:"language"`
	MissingRequired []string         `json:"missing_required"`
	Usage           *models.Usage    `json:"usage,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

func statusOf(j *models.GenerationJob) jobStatus {
	missing := j.MissingRequired
	if missing == nil {
		missing = []string{}
	}
	return jobStatus{
		ID:              j.ID,
		Status:          j.Status,
		Error:           j.Error,
		TemplateID:      j.TemplateID,
		TemplateVersion: j.TemplateVersion,
		Category:        j.Category,
		Language:        j.Language,
		MissingRequired: missing,
		Usage:           j.Usage,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	j, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusOf(j))
}

func (h *JobHandler) Result(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	j, err := h.jobs.Result(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  j.ID,
		"content": j.Content,
		"usage":   j.Usage,
	})
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := models.JobStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed:
	default:
		writeError(w, r, apperr.Invalid("status", "unknown status %q", status))
		return
	}

	list, err := h.jobs.List(r.Context(), job.ListFilter{
		CreatedBy: auth.SubjectFromContext(r.Context()),
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]jobStatus, len(list))
	for i := range list {
		out[i] = statusOf(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "count": len(out)})
}

// Export streams the job content converted to the requested format.
func (h *JobHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.exports.Render(r.Context(), id, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

func (h *JobHandler) ExportFormats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.jobs.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "formats": h.exports.Formats()})
}
