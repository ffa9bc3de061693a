// Package brightdata implements the polling scrape provider: one trigger
// call per shard returns a snapshot id, then the snapshot is polled until
// the provider publishes the result array.
package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/enrich"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// chatGPTURL is the scrape target for every prompt.
const chatGPTURL = "https://chatgpt.com/"

const (
	defaultPollInterval = 30 * time.Second
	defaultPollBudget   = 30 * time.Minute
)

// Config holds the dataset credentials.
type Config struct {
	APIKey    string
	DatasetID string
	BaseURL   string
	Timeout   time.Duration
}

// Client talks to the dataset trigger/snapshot API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	datasetID  string
	baseURL    string
	logger     *slog.Logger

	pollInterval time.Duration
	pollBudget   time.Duration
}

func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		apiKey:       cfg.APIKey,
		datasetID:    cfg.DatasetID,
		baseURL:      cfg.BaseURL,
		logger:       logger,
		pollInterval: defaultPollInterval,
		pollBudget:   defaultPollBudget,
	}
}

// ScrapeInput is one prompt in a trigger request.
type ScrapeInput struct {
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	PromptID  string `json:"prompt_id,omitempty"`
	Country   string `json:"country,omitempty"`
	WebSearch bool   `json:"web_search"`
}

// NewScrapeInput fills the fixed scrape target URL.
func NewScrapeInput(promptID, prompt, country string, webSearch bool) ScrapeInput {
	return ScrapeInput{
		URL:       chatGPTURL,
		Prompt:    prompt,
		PromptID:  promptID,
		Country:   country,
		WebSearch: webSearch,
	}
}

// SourceLink is a cited or attached link in a scrape result.
type SourceLink struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// Result is one prompt's scrape outcome inside a snapshot.
type Result struct {
	Prompt        string            `json:"prompt"`
	PromptID      string            `json:"prompt_id,omitempty"`
	AnswerText    string            `json:"answer_text"`
	Citations     []SourceLink      `json:"citations,omitempty"`
	LinksAttached []SourceLink      `json:"links_attached,omitempty"`
	Sources       []SourceLink      `json:"sources,omitempty"`
	Products      []json.RawMessage `json:"products,omitempty"`
	LocalResults  []json.RawMessage `json:"local_results,omitempty"`
}

// Normalize flattens a provider result into the engine's envelope.
func (r Result) Normalize() enrich.NormalizedResponse {
	citations := make([]models.Citation, 0, len(r.Citations))
	var dates []time.Time
	for _, c := range r.Citations {
		citations = append(citations, models.Citation{Title: c.Title, URL: c.URL})
		if d, ok := parseDate(c.Date); ok {
			dates = append(dates, d)
		}
	}
	linkURLs := make([]string, 0, len(r.LinksAttached)+len(r.Sources))
	for _, l := range r.LinksAttached {
		linkURLs = append(linkURLs, l.URL)
	}
	for _, s := range r.Sources {
		linkURLs = append(linkURLs, s.URL)
	}
	return enrich.NormalizedResponse{
		AnswerText:    r.AnswerText,
		Citations:     citations,
		CitationDates: dates,
		LinkURLs:      linkURLs,
		LinksAttached: len(r.LinksAttached),
		HasSources:    len(r.Sources) > 0,
		ProductCount:  len(r.Products),
		HasProducts:   len(r.Products) > 0,
		LocalCount:    len(r.LocalResults),
		HasLocalFlag:  len(r.LocalResults) > 0,
	}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type snapshotStatus struct {
	Status string `json:"status"`
}

// TriggerScrape submits one shard's prompts and returns the snapshot id
// covering all of them.
func (c *Client) TriggerScrape(ctx context.Context, inputs []ScrapeInput) (string, error) {
	body, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode trigger payload: %w", err)
	}

	url := fmt.Sprintf("%s/datasets/v3/trigger?dataset_id=%s&include_errors=true&format=json", c.baseURL, c.datasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger scrape: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read trigger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &providers.StatusError{Code: resp.StatusCode, Body: truncate(raw)}
	}

	var out triggerResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if out.SnapshotID == "" {
		return "", fmt.Errorf("trigger response missing snapshot_id")
	}
	return out.SnapshotID, nil
}

// WaitForResults polls the snapshot until the provider publishes the result
// array, reports failure, or the polling budget runs out. An exhausted
// budget counts as an upstream failure, not a retryable condition.
func (c *Client) WaitForResults(ctx context.Context, snapshotID string) ([]Result, error) {
	deadline := time.Now().Add(c.pollBudget)
	for {
		results, done, err := c.FetchSnapshot(ctx, snapshotID)
		if err != nil {
			return nil, err
		}
		if done {
			return results, nil
		}

		if time.Now().Add(c.pollInterval).After(deadline) {
			return nil, fmt.Errorf("%w: snapshot %s still running after %s",
				providers.ErrUpstreamFailed, snapshotID, c.pollBudget)
		}

		c.logger.Debug("snapshot not ready", "snapshot_id", snapshotID)
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FetchSnapshot performs a single poll. done is false while the snapshot is
// still building.
func (c *Client) FetchSnapshot(ctx context.Context, snapshotID string) ([]Result, bool, error) {
	url := fmt.Sprintf("%s/datasets/v3/snapshot/%s?format=json", c.baseURL, snapshotID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, &providers.StatusError{Code: resp.StatusCode, Body: truncate(raw)}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []Result
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, false, fmt.Errorf("decode snapshot results: %w", err)
		}
		if len(results) == 0 {
			return nil, false, providers.ErrUpstreamEmpty
		}
		return results, true, nil
	}

	var status snapshotStatus
	if err := json.Unmarshal(trimmed, &status); err != nil {
		return nil, false, fmt.Errorf("decode snapshot status: %w", err)
	}
	switch status.Status {
	case "running", "building", "pending":
		return nil, false, nil
	case "failed":
		return nil, false, fmt.Errorf("%w: snapshot %s", providers.ErrUpstreamFailed, snapshotID)
	default:
		return nil, false, fmt.Errorf("%w: snapshot %s in unknown state %q",
			providers.ErrUpstreamFailed, snapshotID, status.Status)
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
