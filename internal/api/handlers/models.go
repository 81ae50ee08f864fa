package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/docgen/internal/llm"
)

type ModelHandler struct {
	models          []llm.ModelInfo
	defaultProvider string
}

func NewModelHandler(models []llm.ModelInfo, defaultProvider string) *ModelHandler {
	if models == nil {
		models = []llm.ModelInfo{}
	}
	return &ModelHandler{models: models, defaultProvider: defaultProvider}
}

// List reports the provider/model pairs a template's model_config may name.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":           h.models,
		"default_provider": h.defaultProvider,
	})
}
