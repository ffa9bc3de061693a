package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/response"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
)

// SnapshotFetcher reads one Bright Data snapshot without waiting for it.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, snapshotID string) ([]brightdata.Result, bool, error)
}

// NewSnapshotHandler returns the http.HandlerFunc for
// GET /snapshot-data/{snapshotID}. It is a debugging passthrough over the
// provider's snapshot store; ?prompt= filters to results whose prompt
// contains the given text.
func NewSnapshotHandler(fetcher SnapshotFetcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotID")
		if snapshotID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "snapshotID is required", nil)
			return
		}

		results, ready, err := fetcher.FetchSnapshot(r.Context(), snapshotID)
		if err != nil {
			if errors.Is(err, providers.ErrUpstreamEmpty) {
				response.JSON(w, map[string]any{"status": "ready", "results": []brightdata.Result{}})
				return
			}
			var statusErr *providers.StatusError
			if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
				response.Error(w, http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "No such snapshot", nil)
				return
			}
			logger.Error("fetch snapshot", "snapshot_id", snapshotID, "error", err)
			response.Error(w, http.StatusBadGateway, "UPSTREAM_FAILED", "Snapshot could not be fetched", nil)
			return
		}
		if !ready {
			response.JSON(w, map[string]any{"status": "running"})
			return
		}

		if prompt := r.URL.Query().Get("prompt"); prompt != "" {
			filtered := results[:0:0]
			for _, res := range results {
				if strings.Contains(strings.ToLower(res.Prompt), strings.ToLower(prompt)) {
					filtered = append(filtered, res)
				}
			}
			results = filtered
		}

		response.JSON(w, map[string]any{"status": "ready", "results": results})
	}
}
