// Package dispatch contains the two provider workers and the callback
// processor. Workers consume shard messages, drive the scrape, run the
// enrichment engine and advance the batch state machine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/backoff"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// LLMFactory builds an LLM client from the credentials carried in a shard
// message. Injected so workers are testable without the vendor SDK.
type LLMFactory func(apiKey, model string) models.LLMClient

// SnapshotClient is the polling provider surface worker A needs.
type SnapshotClient interface {
	TriggerScrape(ctx context.Context, inputs []brightdata.ScrapeInput) (string, error)
	WaitForResults(ctx context.Context, snapshotID string) ([]brightdata.Result, error)
}

// TaskClient is the callback provider surface worker B needs.
type TaskClient interface {
	CreateTask(ctx context.Context, req dataforseo.TaskRequest) (string, error)
}

// VolumeClient looks up AI search volume for a set of prompts.
type VolumeClient interface {
	BatchVolumes(ctx context.Context, prompts []string, locationCode int) ([]*models.VolumeData, error)
}

// locationCodes maps the country hints we accept to the volume API's
// location codes. Unknown countries fall back to the United States.
var locationCodes = map[string]int{
	"US": 2840,
	"GB": 2826,
	"CA": 2124,
	"AU": 2036,
	"DE": 2276,
	"FR": 2250,
	"IN": 2356,
}

const defaultLocationCode = 2840

func locationCode(country string) int {
	if code, ok := locationCodes[strings.ToUpper(country)]; ok {
		return code
	}
	return defaultLocationCode
}

// classify wraps transient upstream failures in queue.ErrRetryable so the
// consumer redelivers the shard. Everything else is returned as-is and the
// message gets acknowledged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", queue.ErrRetryable, err)
	}
	return err
}

func isTransient(err error) bool {
	var statusErr *providers.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "connection reset")
}

// withBackoff retries op with the shared curve, switching to the slower
// rate-limit curve on 429 and giving up immediately on permanent failures.
func withBackoff(ctx context.Context, op func() error) error {
	return backoff.Do(ctx, func() error {
		err := op()
		if err == nil {
			return nil
		}
		var statusErr *providers.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == 429 {
			return fmt.Errorf("%w: %w", backoff.ErrRateLimited, err)
		}
		if !isTransient(err) {
			return fmt.Errorf("%w: %w", backoff.ErrPermanent, err)
		}
		return err
	})
}

// stampVolumes attaches volume data to each fulfilled result, aligned by
// prompt index. A failed lookup leaves the volume fields null.
func stampVolumes(results []*models.TrackingResult, volumes []*models.VolumeData, locationCode int, now time.Time) {
	for i, r := range results {
		if r == nil || i >= len(volumes) || volumes[i] == nil {
			continue
		}
		v := volumes[i]
		current := v.CurrentVolume
		code := locationCode
		fetched := now
		r.AISearchVolume = &current
		r.AIMonthlyTrends = v.MonthlyTrends
		r.AIVolumeFetchedAt = &fetched
		r.AIVolumeLocation = &code
	}
}

// source returns the result source tag for a provider, with the -nightly
// suffix for scheduler-driven shards.
func source(provider string, nightly bool) string {
	if nightly {
		return provider + "-nightly"
	}
	return provider
}

// promptTexts pulls the raw texts out of a shard for the volume lookup.
func promptTexts(prompts []queue.ShardPrompt) []string {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = p.Text
	}
	return out
}
