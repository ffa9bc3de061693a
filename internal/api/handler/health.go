package handler

import (
	"context"
	"net/http"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/response"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
)

// Pinger is anything with a liveness check (the store, the cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderStatus exposes the health controller's last probe snapshot.
type ProviderStatus interface {
	Status() *providers.Snapshot
}

// NewHealthHandler returns the http.HandlerFunc for GET /api/v1/health.
// Degraded dependencies drop the status to 503 so load balancers stop
// routing submissions here.
func NewHealthHandler(db, cache Pinger, status ProviderStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
			"provider": "none",
		}
		healthy := true

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
		if snap := status.Status(); snap != nil && snap.Active != "" {
			checks["provider"] = snap.Active
		} else {
			healthy = false
		}

		body := map[string]any{"status": "ok", "checks": checks}
		if !healthy {
			body["status"] = "degraded"
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED", "One or more dependencies are down", checks)
			return
		}
		response.JSON(w, body)
	}
}
