package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/fabrica3d/fabrica/internal/kv"
	"github.com/fabrica3d/fabrica/internal/panels"
	"github.com/fabrica3d/fabrica/internal/pipeline"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	store kv.Store,
	orch *pipeline.Orchestrator,
	panelSvc *panels.Service,
	imageHealth HealthChecker,
	reconHealth HealthChecker,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(store, imageHealth, reconHealth)
	productH := NewProductHandler(orch)
	packagingH := NewPackagingHandler(panelSvc)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/product", func(r chi.Router) {
			r.Get("/", productH.Get)
			r.Post("/create", productH.Create)
			r.Post("/edit", productH.Edit)
			r.Get("/status", productH.Status)
			r.Post("/recover", productH.Recover)
			r.Post("/rewind", productH.Rewind)
			r.Post("/clear", productH.Clear)
		})

		r.Route("/packaging", func(r chi.Router) {
			r.Get("/state", packagingH.State)
			r.Get("/status", packagingH.Status)
			r.Post("/panels/generate", packagingH.GeneratePanel)
			r.Post("/panels/generate-all", packagingH.GenerateAll)
			r.Get("/panels/{panelID}/texture", packagingH.GetTexture)
			r.Delete("/panels/{panelID}/texture", packagingH.DeleteTexture)
			r.Post("/update-dimensions", packagingH.UpdateDimensions)
			r.Post("/reset-current-shape", packagingH.ResetShape)
			r.Post("/clear", packagingH.Clear)
		})
	})

	return r
}
