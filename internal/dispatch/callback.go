package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/batch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/enrich"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/notify"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// CallbackProcessor applies one provider callback to its tracking result
// and settles the shard once every result in it is terminal.
type CallbackProcessor struct {
	store        store.Store
	batches      *batch.Manager
	mailer       *notify.ShardMailer
	volumes      VolumeClient
	newLLM       LLMFactory
	defaultModel string
	logger       *slog.Logger
	now          func() time.Time
}

func NewCallbackProcessor(st store.Store, batches *batch.Manager, mailer *notify.ShardMailer,
	volumes VolumeClient, newLLM LLMFactory, defaultModel string, logger *slog.Logger) *CallbackProcessor {
	return &CallbackProcessor{
		store:        st,
		batches:      batches,
		mailer:       mailer,
		volumes:      volumes,
		newLLM:       newLLM,
		defaultModel: defaultModel,
		logger:       logger,
		now:          time.Now,
	}
}

// Process routes a callback to the batch or nightly path.
func (p *CallbackProcessor) Process(ctx context.Context, cc dataforseo.CallbackContext, task dataforseo.Task) error {
	if cc.IsNightly {
		return p.processNightly(ctx, cc, task)
	}
	return p.processBatch(ctx, task)
}

func (p *CallbackProcessor) processBatch(ctx context.Context, task dataforseo.Task) error {
	r, err := p.store.GetTrackingResultByTaskID(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("lookup result for task %s: %w", task.ID, err)
	}
	if r.JobBatchID == nil {
		return fmt.Errorf("result %s has no owning batch", r.ID)
	}

	jb, err := p.store.GetJobBatch(ctx, *r.JobBatchID)
	if err != nil {
		return fmt.Errorf("load job batch %s: %w", r.JobBatchID, err)
	}

	if task.Done() {
		if err := p.fulfill(ctx, r, jb, task); err != nil {
			return err
		}
	} else {
		// Late-failure guard: a result some earlier callback already
		// fulfilled stays fulfilled.
		final, err := p.store.MarkResultFailed(ctx, r.ID, taskFailureReason(task))
		if err != nil {
			return fmt.Errorf("mark result failed: %w", err)
		}
		if final == models.ResultStatusFulfilled {
			p.logger.Info("ignoring late failure for fulfilled result",
				"result_id", r.ID, "task_id", task.ID)
			return nil
		}
	}

	p.settleShard(ctx, jb, r.BatchNumber)
	return nil
}

func (p *CallbackProcessor) fulfill(ctx context.Context, r *models.TrackingResult, jb *models.JobBatch, task dataforseo.Task) error {
	model := jb.OpenAIModel
	if model == "" {
		model = p.defaultModel
	}
	engine := enrich.NewEngine(p.newLLM(jb.OpenAIKey, model), p.logger)
	normalized := task.Normalize()
	enr := engine.Enrich(ctx, enrich.Input{
		Prompt:   r.Prompt,
		Brands:   jb.BrandMentions,
		Domains:  jb.DomainMentions,
		Response: normalized,
	})

	r.Status = models.ResultStatusFulfilled
	// A response carrying sources means the model actually searched the
	// web, whatever the batch requested.
	r.WebSearch = jb.WebSearch || normalized.HasSources
	r.Timestamp = p.now().UnixMilli()
	r.Source = source(providers.DataForSEO, false)
	enr.Apply(r)
	p.lookupVolume(ctx, r, jb.Country)

	if err := p.store.UpdateTrackingResult(ctx, r); err != nil {
		return fmt.Errorf("update tracking result: %w", err)
	}
	return nil
}

func (p *CallbackProcessor) processNightly(ctx context.Context, cc dataforseo.CallbackContext, task dataforseo.Task) error {
	if !task.Done() {
		// Nightly failures leave no row behind.
		p.logger.Warn("nightly task failed", "task_id", task.ID,
			"status_code", task.StatusCode, "prompt_id", cc.PromptID)
		return nil
	}

	prompt, err := p.store.GetPrompt(ctx, cc.PromptID)
	if err != nil {
		return fmt.Errorf("load prompt %s: %w", cc.PromptID, err)
	}

	key, model := p.nightlyCredentials(ctx, cc.UserID)
	engine := enrich.NewEngine(p.newLLM(key, model), p.logger)
	enr := engine.Enrich(ctx, enrich.Input{
		Prompt:   prompt.Text,
		Brands:   prompt.BrandMentions,
		Domains:  prompt.DomainMentions,
		Response: task.Normalize(),
	})

	now := p.now()
	taskID := task.ID
	r := &models.TrackingResult{
		ID:             uuid.New(),
		PromptID:       prompt.ID,
		Prompt:         prompt.Text,
		ProjectID:      cc.ProjectID,
		UserID:         cc.UserID,
		ExternalTaskID: &taskID,
		Status:         models.ResultStatusFulfilled,
		Timestamp:      now.UnixMilli(),
		Source:         source(providers.DataForSEO, true),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	enr.Apply(r)
	p.lookupVolume(ctx, r, prompt.Country)

	if err := p.store.InsertTrackingResult(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			p.logger.Info("duplicate nightly callback ignored", "task_id", task.ID)
			return nil
		}
		return fmt.Errorf("insert nightly result: %w", err)
	}
	return nil
}

func (p *CallbackProcessor) nightlyCredentials(ctx context.Context, userID uuid.UUID) (string, string) {
	settings, err := p.store.GetUserSettings(ctx, userID)
	if err != nil {
		p.logger.Warn("no user settings for nightly enrichment, scores will default",
			"user_id", userID, "error", err)
		return "", p.defaultModel
	}
	model := settings.OpenAIModel
	if model == "" {
		model = p.defaultModel
	}
	return settings.OpenAIKey, model
}

func (p *CallbackProcessor) lookupVolume(ctx context.Context, r *models.TrackingResult, country string) {
	if p.volumes == nil {
		return
	}
	code := locationCode(country)
	volumes, err := p.volumes.BatchVolumes(ctx, []string{r.Prompt}, code)
	if err != nil {
		p.logger.Warn("volume lookup failed", "prompt_id", r.PromptID, "error", err)
		return
	}
	stampVolumes([]*models.TrackingResult{r}, volumes, code, p.now())
}

// settleShard records the shard on the batch once no result in it is still
// pending or processing. The sum guard makes duplicate settles harmless.
func (p *CallbackProcessor) settleShard(ctx context.Context, jb *models.JobBatch, batchNumber int) {
	results, err := p.store.ListShardResults(ctx, jb.ID, batchNumber)
	if err != nil {
		p.logger.Error("list shard results", "job_batch_id", jb.ID, "error", err)
		return
	}

	fulfilled := 0
	for _, r := range results {
		switch r.Status {
		case models.ResultStatusPending, models.ResultStatusProcessing:
			return
		case models.ResultStatusFulfilled:
			fulfilled++
		}
	}

	succeeded := fulfilled > 0
	out, err := p.batches.RecordShard(ctx, jb.ID, succeeded)
	if err != nil {
		p.logger.Error("record shard", "job_batch_id", jb.ID, "error", err)
		return
	}
	if !out.Applied {
		return
	}

	msg := queue.ShardMessage{
		Service:      providers.DataForSEO,
		UserID:       jb.UserID,
		ProjectID:    jb.ProjectID,
		JobBatchID:   &jb.ID,
		BatchNumber:  batchNumber,
		TotalBatches: jb.TotalBatches,
		Email:        jb.Email,
		Prompts:      make([]queue.ShardPrompt, len(results)),
	}
	if succeeded {
		p.mailer.ShardSucceeded(ctx, msg)
	} else {
		p.mailer.ShardFailed(ctx, msg, "all prompts in shard failed")
	}
}

func taskFailureReason(task dataforseo.Task) string {
	if task.StatusCode == 20000 && len(task.Result) == 0 {
		return "UpstreamEmpty"
	}
	if task.StatusMessage != "" {
		return fmt.Sprintf("UpstreamFailed: %d %s", task.StatusCode, task.StatusMessage)
	}
	return fmt.Sprintf("UpstreamFailed: %d", task.StatusCode)
}
