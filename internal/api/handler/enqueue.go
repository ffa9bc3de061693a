package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/response"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/llm"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// keyProbeTimeout bounds the single-token validation call against OpenAI.
const keyProbeTimeout = 15 * time.Second

// ProviderSelector yields the currently active scraping provider.
type ProviderSelector interface {
	Active(ctx context.Context) (string, error)
}

// LLMFactory builds a validation client from submitted credentials.
type LLMFactory func(apiKey, model string) models.LLMClient

// EnqueueDeps wires the submission pipeline into the handler.
type EnqueueDeps struct {
	Store        store.Store
	Publisher    queue.Publisher
	Providers    ProviderSelector
	NewLLM       LLMFactory
	QueueURLs    map[string]string
	DefaultModel string
	Logger       *slog.Logger
}

type enqueuePrompt struct {
	Text           string   `json:"text"`
	BrandMentions  []string `json:"brandMentions"`
	DomainMentions []string `json:"domainMentions"`
	Country        string   `json:"country"`
}

type enqueueRequest struct {
	UserID      uuid.UUID       `json:"userId"`
	ProjectID   uuid.UUID       `json:"projectId"`
	Email       string          `json:"email"`
	OpenAIKey   string          `json:"openaiKey"`
	OpenAIModel string          `json:"openaiModel"`
	WebSearch   bool            `json:"webSearch"`
	Country     string          `json:"country"`
	Tags        []string        `json:"tags"`
	Prompts     []enqueuePrompt `json:"prompts"`
}

// NewEnqueueHandler returns the http.HandlerFunc for POST /enqueue. It
// validates the submission, picks the active provider, persists the batch
// transactionally and fans the shards out to the provider queue.
func NewEnqueueHandler(deps EnqueueDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if details := validateEnqueue(req); len(details) > 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid submission", details)
			return
		}

		model := req.OpenAIModel
		if model == "" {
			model = deps.DefaultModel
		}

		probeCtx, cancel := context.WithTimeout(r.Context(), keyProbeTimeout)
		err := deps.NewLLM(req.OpenAIKey, model).ValidateKey(probeCtx)
		cancel()
		if err != nil {
			writeKeyError(w, err)
			return
		}

		service, err := deps.Providers.Active(r.Context())
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "ALL_PROVIDERS_DOWN",
				"No scraping provider is currently available", nil)
			return
		}

		batch, prompts, results := buildSubmission(req, model)
		if err := deps.Store.CreateSubmission(r.Context(), batch, prompts, results); err != nil {
			deps.Logger.Error("create submission", "job_batch_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not persist the submission", nil)
			return
		}

		applyTags(r.Context(), deps, req.Tags, req.ProjectID, prompts)

		if err := deps.Store.UpdateJobBatchStatus(r.Context(), batch.ID, models.BatchStatusProcessing); err != nil {
			deps.Logger.Error("update batch status", "job_batch_id", batch.ID, "error", err)
		}

		publishShards(r.Context(), deps, service, batch, prompts, results)

		response.JSON(w, map[string]any{
			"jobBatchId":   batch.ID,
			"totalPrompts": batch.TotalPrompts,
			"totalBatches": batch.TotalBatches,
			"service":      service,
		})
	}
}

func validateEnqueue(req enqueueRequest) map[string][]string {
	details := map[string][]string{}
	if req.UserID == uuid.Nil {
		details["userId"] = append(details["userId"], "userId is required")
	}
	if req.ProjectID == uuid.Nil {
		details["projectId"] = append(details["projectId"], "projectId is required")
	}
	if req.OpenAIKey == "" {
		details["openaiKey"] = append(details["openaiKey"], "openaiKey is required")
	}
	if len(req.Prompts) == 0 {
		details["prompts"] = append(details["prompts"], "at least one prompt is required")
	}
	for i, p := range req.Prompts {
		if p.Text == "" {
			details["prompts"] = append(details["prompts"],
				"prompt text is required (index "+strconv.Itoa(i)+")")
		}
	}
	return details
}

// writeKeyError answers a failed key probe. Rejected credentials are the
// caller's problem, so every typed key error is a 400; only an unreachable
// upstream is reported as a gateway failure.
func writeKeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrAuthFailed):
		response.Error(w, http.StatusBadRequest, "AUTH_FAILED", "OpenAI rejected the key", nil)
	case errors.Is(err, llm.ErrQuotaExceeded):
		response.Error(w, http.StatusBadRequest, "QUOTA_EXCEEDED", "OpenAI quota exceeded for this key", nil)
	case errors.Is(err, llm.ErrModelForbidden):
		response.Error(w, http.StatusBadRequest, "MODEL_FORBIDDEN", "The key cannot use the requested model", nil)
	case errors.Is(err, llm.ErrModelNotFound):
		response.Error(w, http.StatusBadRequest, "MODEL_NOT_FOUND", "The requested model does not exist", nil)
	default:
		response.Error(w, http.StatusBadGateway, "OPENAI_UNAVAILABLE", "OpenAI could not be reached", nil)
	}
}

// buildSubmission materializes the batch, its prompts and their pending
// tracking results. Batch numbers follow the shard split so workers and the
// state machine agree on shard membership.
func buildSubmission(req enqueueRequest, model string) (*models.JobBatch, []*models.Prompt, []*models.TrackingResult) {
	now := time.Now()
	total := len(req.Prompts)
	size := queue.ShardSize(total)
	totalBatches := (total + size - 1) / size

	batch := &models.JobBatch{
		ID:             uuid.New(),
		UserID:         req.UserID,
		ProjectID:      req.ProjectID,
		Email:          req.Email,
		TotalPrompts:   total,
		TotalBatches:   totalBatches,
		Status:         models.BatchStatusPending,
		OpenAIKey:      req.OpenAIKey,
		OpenAIModel:    model,
		WebSearch:      req.WebSearch,
		Country:        req.Country,
		BrandMentions:  collectMentions(req.Prompts, func(p enqueuePrompt) []string { return p.BrandMentions }),
		DomainMentions: collectMentions(req.Prompts, func(p enqueuePrompt) []string { return p.DomainMentions }),
		Tags:           req.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	prompts := make([]*models.Prompt, total)
	results := make([]*models.TrackingResult, total)
	for i, p := range req.Prompts {
		prompts[i] = &models.Prompt{
			ID:             uuid.New(),
			ProjectID:      req.ProjectID,
			UserID:         req.UserID,
			Text:           p.Text,
			Enabled:        true,
			BrandMentions:  p.BrandMentions,
			DomainMentions: p.DomainMentions,
			Country:        p.Country,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		results[i] = &models.TrackingResult{
			ID:          uuid.New(),
			PromptID:    prompts[i].ID,
			Prompt:      p.Text,
			ProjectID:   req.ProjectID,
			UserID:      req.UserID,
			JobBatchID:  &batch.ID,
			BatchNumber: i / size,
			Status:      models.ResultStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return batch, prompts, results
}

// applyTags upserts each tag in the project scope and links it to every
// prompt in the submission. Tag failures never fail the submission.
func applyTags(ctx context.Context, deps EnqueueDeps, tags []string, projectID uuid.UUID, prompts []*models.Prompt) {
	if len(tags) == 0 {
		return
	}
	promptIDs := make([]uuid.UUID, len(prompts))
	for i, p := range prompts {
		promptIDs[i] = p.ID
	}
	for _, name := range tags {
		tag, err := deps.Store.UpsertTag(ctx, projectID, name)
		if err != nil {
			deps.Logger.Error("upsert tag", "tag", name, "error", err)
			continue
		}
		if err := deps.Store.TagPrompts(ctx, tag.ID, promptIDs); err != nil {
			deps.Logger.Error("tag prompts", "tag", name, "error", err)
		}
	}
}

// publishShards fans the submission out to the active provider's queue, one
// message per shard. Publish failures are logged and skipped; the affected
// shard's rows stay pending until redriven.
func publishShards(ctx context.Context, deps EnqueueDeps, service string, batch *models.JobBatch,
	prompts []*models.Prompt, results []*models.TrackingResult) {
	queueURL := deps.QueueURLs[service]
	if queueURL == "" {
		deps.Logger.Error("no queue configured for provider", "service", service)
		return
	}

	shardPrompts := make([]queue.ShardPrompt, len(prompts))
	for i, p := range prompts {
		shardPrompts[i] = queue.ShardPrompt{
			PromptID:       p.ID,
			TrackingID:     results[i].ID,
			Text:           p.Text,
			Country:        p.Country,
			BrandMentions:  p.BrandMentions,
			DomainMentions: p.DomainMentions,
		}
	}

	for n, shard := range queue.SplitPrompts(shardPrompts) {
		msg := queue.ShardMessage{
			Service:      service,
			UserID:       batch.UserID,
			ProjectID:    batch.ProjectID,
			JobBatchID:   &batch.ID,
			BatchNumber:  n,
			TotalBatches: batch.TotalBatches,
			Email:        batch.Email,
			OpenAIKey:    batch.OpenAIKey,
			OpenAIModel:  batch.OpenAIModel,
			WebSearch:    batch.WebSearch,
			Country:      batch.Country,
			Prompts:      shard,
		}
		if err := deps.Publisher.Publish(ctx, queueURL, msg); err != nil {
			deps.Logger.Error("publish shard", "job_batch_id", batch.ID, "batch_number", n, "error", err)
		}
	}
}

// collectMentions merges per-prompt mention lists into the batch-level
// snapshot, preserving first-seen order.
func collectMentions(prompts []enqueuePrompt, pick func(enqueuePrompt) []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range prompts {
		for _, m := range pick(p) {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
