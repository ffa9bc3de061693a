// Package dataforseo implements the callback scrape provider and the AI
// search-volume API. Scrape tasks are submitted one per prompt; results
// arrive on our callback endpoint with the task id as correlation token.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/enrich"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// taskStatusOK is the provider's status code for a completed task.
const taskStatusOK = 20000

// Config holds the API credentials.
type Config struct {
	Login    string
	Password string
	BaseURL  string
	Timeout  time.Duration
}

// Client talks to the task and keyword APIs using basic auth.
type Client struct {
	httpClient *http.Client
	login      string
	password   string
	baseURL    string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		login:      cfg.Login,
		password:   cfg.Password,
		baseURL:    cfg.BaseURL,
		logger:     logger,
	}
}

// CallbackContext is the correlation data carried on the postback URL. For
// nightly tasks it is the only link back to the prompt, since no pending
// row exists to stamp.
type CallbackContext struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	PromptID  uuid.UUID
	IsNightly bool
}

// Encode renders the context as postback query parameters.
func (c CallbackContext) Encode() url.Values {
	v := url.Values{}
	v.Set("user_id", c.UserID.String())
	v.Set("project_id", c.ProjectID.String())
	v.Set("prompt_id", c.PromptID.String())
	v.Set("is_nightly", fmt.Sprintf("%t", c.IsNightly))
	return v
}

// ParseCallbackContext reads the correlation data back off a callback
// request's query string.
func ParseCallbackContext(v url.Values) (CallbackContext, error) {
	userID, err := uuid.Parse(v.Get("user_id"))
	if err != nil {
		return CallbackContext{}, fmt.Errorf("parse user_id: %w", err)
	}
	projectID, err := uuid.Parse(v.Get("project_id"))
	if err != nil {
		return CallbackContext{}, fmt.Errorf("parse project_id: %w", err)
	}
	promptID, err := uuid.Parse(v.Get("prompt_id"))
	if err != nil {
		return CallbackContext{}, fmt.Errorf("parse prompt_id: %w", err)
	}
	return CallbackContext{
		UserID:    userID,
		ProjectID: projectID,
		PromptID:  promptID,
		IsNightly: v.Get("is_nightly") == "true",
	}, nil
}

// TaskRequest is one prompt submitted for scraping.
type TaskRequest struct {
	Prompt      string
	Country     string
	WebSearch   bool
	PostbackURL string
}

type taskPostItem struct {
	UserPrompt     string `json:"user_prompt"`
	LocationName   string `json:"location_name,omitempty"`
	ForceWebSearch bool   `json:"force_ai_mode,omitempty"`
	PostbackURL    string `json:"postback_url"`
	PostbackData   string `json:"postback_data"`
}

type taskEnvelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []Task `json:"tasks"`
}

// Task is one entry of a task_post or callback envelope.
type Task struct {
	ID            string       `json:"id"`
	StatusCode    int          `json:"status_code"`
	StatusMessage string       `json:"status_message"`
	Data          TaskData     `json:"data"`
	Result        []TaskResult `json:"result"`
}

type TaskData struct {
	UserPrompt   string `json:"user_prompt"`
	LocationName string `json:"location_name"`
}

// TaskResult is the scraped answer for one task.
type TaskResult struct {
	Markdown string       `json:"markdown"`
	Items    []ResultItem `json:"items"`
	Sources  []Source     `json:"sources"`
}

// ResultItem is a structured element nested in a result (products, images,
// local entries).
type ResultItem struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Source is one cited source.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// Done reports whether the task completed with a result payload.
func (t Task) Done() bool {
	return t.StatusCode == taskStatusOK && len(t.Result) > 0
}

// Normalize flattens the first result into the engine's envelope.
func (t Task) Normalize() enrich.NormalizedResponse {
	if len(t.Result) == 0 {
		return enrich.NormalizedResponse{}
	}
	r := t.Result[0]

	citations := make([]models.Citation, 0, len(r.Sources))
	var dates []time.Time
	for _, s := range r.Sources {
		citations = append(citations, models.Citation{Title: s.Title, URL: s.URL})
		if s.Date != "" {
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if d, err := time.Parse(layout, s.Date); err == nil {
					dates = append(dates, d)
					break
				}
			}
		}
	}

	n := enrich.NormalizedResponse{
		AnswerText:    r.Markdown,
		Citations:     citations,
		CitationDates: dates,
		HasSources:    len(r.Sources) > 0,
		LinksAttached: len(r.Sources),
	}
	for _, item := range r.Items {
		switch item.Type {
		case "product", "shopping":
			n.ProductCount++
			n.HasProducts = true
		case "image":
			n.ImageItemCount++
		case "local", "map", "local_pack":
			n.LocalCount++
			n.HasLocalFlag = true
		}
	}
	return n
}

// CreateTask submits one prompt for scraping and returns the provider's
// task id. Results arrive later on the postback URL.
func (c *Client) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	payload := []taskPostItem{{
		UserPrompt:     req.Prompt,
		LocationName:   req.Country,
		ForceWebSearch: req.WebSearch,
		PostbackURL:    req.PostbackURL,
		PostbackData:   "markdown",
	}}

	var env taskEnvelope
	err := c.post(ctx, "/v3/ai_optimization/chat_gpt/llm_responses/task_post", payload, &env)
	if err != nil {
		return "", err
	}
	if len(env.Tasks) == 0 {
		return "", fmt.Errorf("task_post returned no tasks")
	}
	task := env.Tasks[0]
	// 201xx codes mean the task was created and is in progress.
	if task.StatusCode >= 40000 {
		return "", fmt.Errorf("%w: task rejected with %d %s",
			providers.ErrUpstreamFailed, task.StatusCode, task.StatusMessage)
	}
	if task.ID == "" {
		return "", fmt.Errorf("task_post returned no task id")
	}
	return task.ID, nil
}

// ParseCallback decodes a postback body into its first task.
func ParseCallback(body []byte) (Task, error) {
	var env taskEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Task{}, fmt.Errorf("decode callback payload: %w", err)
	}
	if len(env.Tasks) == 0 {
		return Task{}, fmt.Errorf("callback payload has no tasks")
	}
	return env.Tasks[0], nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &providers.StatusError{Code: resp.StatusCode, Body: truncate(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
