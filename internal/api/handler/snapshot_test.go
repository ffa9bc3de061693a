package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
)

type fakeFetcher struct {
	results []brightdata.Result
	ready   bool
	err     error
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, snapshotID string) ([]brightdata.Result, bool, error) {
	return f.results, f.ready, f.err
}

func getSnapshot(fetcher SnapshotFetcher, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/snapshot-data/{snapshotID}", NewSnapshotHandler(fetcher, slog.Default()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestSnapshotReady(t *testing.T) {
	fetcher := &fakeFetcher{
		ready: true,
		results: []brightdata.Result{
			{Prompt: "best crm software", AnswerText: "one"},
			{Prompt: "cheapest crm", AnswerText: "two"},
		},
	}
	w := getSnapshot(fetcher, "/snapshot-data/snap-1")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ready", data["status"])
	assert.Len(t, data["results"], 2)
}

func TestSnapshotPromptFilter(t *testing.T) {
	fetcher := &fakeFetcher{
		ready: true,
		results: []brightdata.Result{
			{Prompt: "best crm software", AnswerText: "one"},
			{Prompt: "cheapest crm", AnswerText: "two"},
		},
	}
	w := getSnapshot(fetcher, "/snapshot-data/snap-1?prompt=cheapest")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Len(t, data["results"], 1)
}

func TestSnapshotStillRunning(t *testing.T) {
	w := getSnapshot(&fakeFetcher{}, "/snapshot-data/snap-1")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "running", data["status"])
}

func TestSnapshotNotFound(t *testing.T) {
	fetcher := &fakeFetcher{err: &providers.StatusError{Code: http.StatusNotFound, Body: "no snapshot"}}
	w := getSnapshot(fetcher, "/snapshot-data/missing")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotEmpty(t *testing.T) {
	fetcher := &fakeFetcher{err: providers.ErrUpstreamEmpty}
	w := getSnapshot(fetcher, "/snapshot-data/snap-1")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Len(t, data["results"], 0)
}
