package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/vidforge/vidforge/internal/api/middleware"
	"github.com/vidforge/vidforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	ListJobsHandler     http.HandlerFunc
	CreateJobHandler    http.HandlerFunc
	GetJobHandler       http.HandlerFunc
	JobStatusHandler    http.HandlerFunc
	DeleteJobHandler    http.HandlerFunc
	ReconcileJobHandler http.HandlerFunc
	JobArtifactHandler  http.HandlerFunc
	EngineStatusHandler http.HandlerFunc

	GetSettingsHandler http.HandlerFunc
	PutSettingsHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("jobs"))

			r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
			r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJobHandler))
			r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
			r.Get("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.JobStatusHandler))
			r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJobHandler))
			r.Post("/api/v1/jobs/{jobID}/reconcile", orNotImplemented(deps.ReconcileJobHandler))
			r.Get("/api/v1/jobs/{jobID}/artifact", orNotImplemented(deps.JobArtifactHandler))

			r.Get("/api/v1/engine/status", orNotImplemented(deps.EngineStatusHandler))
			r.Get("/api/v1/settings", orNotImplemented(deps.GetSettingsHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Put("/api/v1/settings", orNotImplemented(deps.PutSettingsHandler))
			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
