package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func probeServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runOneProbe(t *testing.T, targets []Target) *HealthController {
	t.Helper()
	h := NewHealthController(targets, slog.Default())
	h.probe(context.Background())
	return h
}

func TestActivePrefersFirstHealthy(t *testing.T) {
	b := probeServer(t, http.StatusOK)
	a := probeServer(t, http.StatusOK)

	h := runOneProbe(t, []Target{
		{Name: DataForSEO, URL: b.URL},
		{Name: BrightData, URL: a.URL},
	})

	active, err := h.Active(context.Background())
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active != DataForSEO {
		t.Errorf("active = %q, want %q", active, DataForSEO)
	}
}

func TestActiveFallsBackToSecond(t *testing.T) {
	b := probeServer(t, http.StatusInternalServerError)
	a := probeServer(t, http.StatusOK)

	h := runOneProbe(t, []Target{
		{Name: DataForSEO, URL: b.URL},
		{Name: BrightData, URL: a.URL},
	})

	active, err := h.Active(context.Background())
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active != BrightData {
		t.Errorf("active = %q, want %q", active, BrightData)
	}
}

func TestRateLimitedCountsAsHealthy(t *testing.T) {
	b := probeServer(t, http.StatusTooManyRequests)

	h := runOneProbe(t, []Target{{Name: DataForSEO, URL: b.URL}})

	active, err := h.Active(context.Background())
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active != DataForSEO {
		t.Errorf("active = %q, want %q", active, DataForSEO)
	}
}

func TestAllProvidersDown(t *testing.T) {
	b := probeServer(t, http.StatusServiceUnavailable)
	a := probeServer(t, http.StatusBadGateway)

	h := runOneProbe(t, []Target{
		{Name: DataForSEO, URL: b.URL},
		{Name: BrightData, URL: a.URL},
	})

	_, err := h.Active(context.Background())
	if !errors.Is(err, ErrAllProvidersDown) {
		t.Errorf("err = %v, want ErrAllProvidersDown", err)
	}
}

func TestActiveBlocksUntilFirstProbe(t *testing.T) {
	h := NewHealthController(nil, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.Active(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
