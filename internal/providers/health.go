package providers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	probeInterval = 60 * time.Second
	probeTimeout  = 10 * time.Second
)

// Target is one provider's health endpoint.
type Target struct {
	Name string
	URL  string
}

// Snapshot is the outcome of one probe round.
type Snapshot struct {
	Active    string
	CheckedAt time.Time
	Healthy   map[string]bool
}

// HealthController probes both providers every minute and caches the first
// healthy one in preference order. Reads after the initial probe are O(1).
type HealthController struct {
	targets []Target
	client  *http.Client
	logger  *slog.Logger

	current   atomic.Pointer[Snapshot]
	readyOnce sync.Once
	ready     chan struct{}
}

// NewHealthController builds a controller over the given targets. Order is
// preference order: the first healthy target wins.
func NewHealthController(targets []Target, logger *slog.Logger) *HealthController {
	return &HealthController{
		targets: targets,
		client:  &http.Client{Timeout: probeTimeout},
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// DefaultTargets probes the callback provider first, then the polling one.
func DefaultTargets(dataForSEOURL, brightDataURL string) []Target {
	return []Target{
		{Name: DataForSEO, URL: dataForSEOURL},
		{Name: BrightData, URL: brightDataURL},
	}
}

// Run probes on a fixed interval until ctx is cancelled. The first round
// runs immediately so Active callers unblock fast.
func (h *HealthController) Run(ctx context.Context) {
	h.probe(ctx)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

// Active returns the currently healthy provider name, blocking until the
// first probe round completes. ErrAllProvidersDown when no target passed
// its most recent probe.
func (h *HealthController) Active(ctx context.Context) (string, error) {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	snap := h.current.Load()
	if snap == nil || snap.Active == "" {
		return "", ErrAllProvidersDown
	}
	return snap.Active, nil
}

// Status returns the latest probe snapshot, nil before the first round.
func (h *HealthController) Status() *Snapshot {
	return h.current.Load()
}

func (h *HealthController) probe(ctx context.Context) {
	snap := &Snapshot{
		CheckedAt: time.Now(),
		Healthy:   make(map[string]bool, len(h.targets)),
	}

	for _, t := range h.targets {
		healthy := h.probeOne(ctx, t)
		snap.Healthy[t.Name] = healthy
		if healthy && snap.Active == "" {
			snap.Active = t.Name
		}
	}

	if snap.Active == "" {
		h.logger.Error("no healthy scrape provider", "targets", len(h.targets))
	}

	h.current.Store(snap)
	h.readyOnce.Do(func() { close(h.ready) })
}

// probeOne treats 2xx and 429 as healthy: a rate-limited provider is still
// up.
func (h *HealthController) probeOne(ctx context.Context, t Target) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		h.logger.Warn("health probe request", "provider", t.Name, "error", err)
		return false
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("health probe failed", "provider", t.Name, "error", err)
		return false
	}
	defer resp.Body.Close()

	ok := (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusTooManyRequests
	if !ok {
		h.logger.Warn("health probe unhealthy", "provider", t.Name, "status", resp.StatusCode)
	}
	return ok
}
