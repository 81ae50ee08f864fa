package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/docgen/internal/prompt"
)

type TemplateHandler struct {
	svc *prompt.Service
}

func NewTemplateHandler(svc *prompt.Service) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req prompt.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
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
	activeOnly, err := queryBool(r, "active_only")
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	templates, err := h.svc.List(r.Context(), prompt.ListFilter{
		Category:   q.Get("category"),
		Search:     q.Get("search"),
		ActiveOnly: activeOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req prompt.UpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	versions, err := h.svc.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"versions": versions, "count": len(versions)})
}

func (h *TemplateHandler) Version(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := pathInt(r, "version")
	if err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.svc.GetVersion(r.Context(), id, n)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *TemplateHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := pathInt(r, "version")
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.svc.RestoreVersion(r.Context(), id, n)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) DefaultForCategory(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.DefaultForCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// Preview resolves an unsaved template body against sample values.
func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req prompt.PreviewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := prompt.Preview(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type extractVariablesRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *TemplateHandler) ExtractVariables(w http.ResponseWriter, r *http.Request) {
	var req extractVariablesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	vars := prompt.ExtractVariables(req.Text)
	if vars == nil {
		vars = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars})
}
