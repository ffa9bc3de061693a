package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/response"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
)

// maxCallbackBody caps how much of a provider callback we are willing to
// read. Real payloads are a few hundred KB of markdown at most.
const maxCallbackBody = 8 << 20

// CallbackSink applies one parsed provider callback.
type CallbackSink interface {
	Process(ctx context.Context, cc dataforseo.CallbackContext, task dataforseo.Task) error
}

// NewDataForSEOCallbackHandler returns the http.HandlerFunc for
// POST /api/dataforseo/callback. Logical task failures are recorded and still
// answered with 200 so the provider does not re-deliver them; only infra
// failures surface as 500.
func NewDataForSEOCallbackHandler(sink CallbackSink, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cc, err := dataforseo.ParseCallbackContext(r.URL.Query())
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_CALLBACK",
				"Callback query is missing correlation data", nil)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_CALLBACK", "Could not read callback body", nil)
			return
		}

		task, err := dataforseo.ParseCallback(body)
		if err != nil {
			logger.Warn("unparseable provider callback", "prompt_id", cc.PromptID, "error", err)
			response.Error(w, http.StatusBadRequest, "INVALID_CALLBACK", "Could not parse callback payload", nil)
			return
		}

		if err := sink.Process(r.Context(), cc, task); err != nil {
			logger.Error("process callback", "task_id", task.ID, "prompt_id", cc.PromptID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Callback could not be applied", nil)
			return
		}

		response.JSON(w, map[string]any{"received": true})
	}
}
