package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docgen/internal/api/handlers"
	"github.com/nikhilbhutani/docgen/internal/api/middleware"
	"github.com/nikhilbhutani/docgen/internal/auth"
	"github.com/nikhilbhutani/docgen/internal/config"
	"github.com/nikhilbhutani/docgen/internal/export"
	"github.com/nikhilbhutani/docgen/internal/generation"
	"github.com/nikhilbhutani/docgen/internal/llm"
	"github.com/nikhilbhutani/docgen/internal/metrics"
	"github.com/nikhilbhutani/docgen/internal/prompt"
)

// Deps are the services the HTTP surface is built over.
type Deps struct {
	Config    *config.Config
	Templates *prompt.Service
	Jobs      *generation.Service
	Exports   *export.Service
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// Models are the generation models callers may pick in model_config.
	Models []llm.ModelInfo
	// Checks are probed by /readyz.
	Checks map[string]handlers.Checker
}

type Router struct {
	mux     *chi.Mux
	deps    Deps
	limiter *middleware.RateLimiter
}

func NewRouter(deps Deps) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		deps:    deps,
		limiter: middleware.NewRateLimiter(deps.Config.RateLimit.RPS, deps.Config.RateLimit.Burst),
	}
}

// Limiter exposes the rate limiter so the caller can run its cleanup loop.
func (rt *Router) Limiter() *middleware.RateLimiter {
	return rt.limiter
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Logger, rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(rt.limiter.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			r.Use(auth.NewJWTMiddleware(cfg.Auth.JWTSecret).Authenticate)
		}

		// Template routes
		templateH := handlers.NewTemplateHandler(rt.deps.Templates)
		r.Route("/templates", func(r chi.Router) {
			r.Post("/", templateH.Create)
			r.Get("/", templateH.List)
			r.Post("/preview", templateH.Preview)
			r.Post("/extract-variables", templateH.ExtractVariables)
			r.Get("/category/{category}/default", templateH.DefaultForCategory)
			r.Get("/{id}", templateH.Get)
			r.Put("/{id}", templateH.Update)
			r.Delete("/{id}", templateH.Delete)
			r.Get("/{id}/versions", templateH.Versions)
			r.Get("/{id}/versions/{version}", templateH.Version)
			r.Post("/{id}/versions/{version}/restore", templateH.Restore)
		})

		modelH := handlers.NewModelHandler(rt.deps.Models, cfg.LLM.DefaultProvider)
		r.Get("/models", modelH.List)

		// Job routes
		jobH := handlers.NewJobHandler(rt.deps.Jobs, rt.deps.Exports)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobH.Submit)
			r.Get("/", jobH.List)
			r.Get("/{id}", jobH.Get)
			r.Get("/{id}/result", jobH.Result)
			r.Get("/{id}/export", jobH.Export)
			r.Get("/{id}/export-formats", jobH.ExportFormats)
		})
	})

	return r
}
