// Package api assembles the HTTP surface: submission, provider callback,
// snapshot passthrough and health.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/middleware"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler   http.HandlerFunc
	EnqueueHandler  http.HandlerFunc
	CallbackHandler http.HandlerFunc
	SnapshotHandler http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/enqueue", orNotImplemented(deps.EnqueueHandler))
	r.Post("/api/dataforseo/callback", orNotImplemented(deps.CallbackHandler))
	r.Get("/snapshot-data/{snapshotID}", orNotImplemented(deps.SnapshotHandler))

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
