package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/batch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/enrich"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/notify"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// BrightDataWorker drives the polling provider: trigger one scrape per
// shard, wait for the snapshot, then enrich and persist every prompt.
type BrightDataWorker struct {
	store        store.Store
	batches      *batch.Manager
	mailer       *notify.ShardMailer
	scraper      SnapshotClient
	volumes      VolumeClient
	newLLM       LLMFactory
	defaultModel string
	logger       *slog.Logger
	now          func() time.Time
}

func NewBrightDataWorker(st store.Store, batches *batch.Manager, mailer *notify.ShardMailer,
	scraper SnapshotClient, volumes VolumeClient, newLLM LLMFactory, defaultModel string,
	logger *slog.Logger) *BrightDataWorker {
	return &BrightDataWorker{
		store:        st,
		batches:      batches,
		mailer:       mailer,
		scraper:      scraper,
		volumes:      volumes,
		newLLM:       newLLM,
		defaultModel: defaultModel,
		logger:       logger,
		now:          time.Now,
	}
}

// Handle processes one shard message.
func (w *BrightDataWorker) Handle(ctx context.Context, msg queue.ShardMessage) error {
	if msg.Service != providers.BrightData {
		w.logger.Warn("dropping shard addressed to another service", "service", msg.Service)
		return nil
	}

	model := msg.OpenAIModel
	if model == "" {
		model = w.defaultModel
	}
	engine := enrich.NewEngine(w.newLLM(msg.OpenAIKey, model), w.logger)

	snapshotID := msg.TaskID
	if snapshotID == "" {
		var err error
		snapshotID, err = w.trigger(ctx, msg)
		if err != nil {
			if isTransient(err) {
				return classify(err)
			}
			return w.failShard(ctx, msg, err)
		}
	}

	results, err := w.scraper.WaitForResults(ctx, snapshotID)
	if err != nil {
		if isTransient(err) {
			return classify(err)
		}
		return w.failShard(ctx, msg, err)
	}
	if len(results) < len(msg.Prompts) {
		w.logger.Warn("snapshot returned fewer results than prompts",
			"snapshot_id", snapshotID, "got", len(results), "want", len(msg.Prompts))
	}

	matched := matchResults(msg.Prompts, results)

	// Enrichment is sequential within the shard.
	rows := make([]*models.TrackingResult, len(msg.Prompts))
	for i, p := range msg.Prompts {
		res, ok := matched[i]
		if !ok {
			continue
		}
		enr := engine.Enrich(ctx, enrich.Input{
			Prompt:   p.Text,
			Brands:   p.BrandMentions,
			Domains:  p.DomainMentions,
			Response: res.Normalize(),
		})
		rows[i] = w.buildRow(msg, p, snapshotID, enr)
	}

	w.lookupVolumes(ctx, msg, rows)

	fulfilled := 0
	for i, p := range msg.Prompts {
		if rows[i] == nil {
			if !msg.Nightly {
				if _, err := w.store.MarkResultFailed(ctx, p.TrackingID, "NoResponse"); err != nil {
					w.logger.Error("mark unmatched prompt failed", "tracking_id", p.TrackingID, "error", err)
				}
			}
			continue
		}
		if err := w.persist(ctx, msg, rows[i]); err != nil {
			w.logger.Error("persist tracking result", "tracking_id", rows[i].ID, "error", err)
			continue
		}
		fulfilled++
	}

	w.settle(ctx, msg, fulfilled)
	return nil
}

func (w *BrightDataWorker) trigger(ctx context.Context, msg queue.ShardMessage) (string, error) {
	inputs := make([]brightdata.ScrapeInput, len(msg.Prompts))
	for i, p := range msg.Prompts {
		country := p.Country
		if country == "" {
			country = msg.Country
		}
		inputs[i] = brightdata.NewScrapeInput(p.PromptID.String(), p.Text, country, msg.WebSearch)
	}

	var snapshotID string
	err := withBackoff(ctx, func() error {
		id, err := w.scraper.TriggerScrape(ctx, inputs)
		if err != nil {
			return err
		}
		snapshotID = id
		return nil
	})
	return snapshotID, err
}

func (w *BrightDataWorker) buildRow(msg queue.ShardMessage, p queue.ShardPrompt, snapshotID string, enr enrich.Enrichment) *models.TrackingResult {
	now := w.now()
	r := &models.TrackingResult{
		ID:             p.TrackingID,
		PromptID:       p.PromptID,
		Prompt:         p.Text,
		ProjectID:      msg.ProjectID,
		UserID:         msg.UserID,
		JobBatchID:     msg.JobBatchID,
		BatchNumber:    msg.BatchNumber,
		ExternalTaskID: &snapshotID,
		Status:         models.ResultStatusFulfilled,
		WebSearch:      msg.WebSearch,
		Timestamp:      now.UnixMilli(),
		Source:         source(providers.BrightData, msg.Nightly),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if msg.Nightly {
		// Nightly rows are fresh inserts with no owning batch.
		r.ID = uuid.New()
		r.JobBatchID = nil
	}
	enr.Apply(r)
	return r
}

func (w *BrightDataWorker) persist(ctx context.Context, msg queue.ShardMessage, r *models.TrackingResult) error {
	if msg.Nightly {
		return w.store.InsertTrackingResult(ctx, r)
	}
	return w.store.UpdateTrackingResult(ctx, r)
}

func (w *BrightDataWorker) lookupVolumes(ctx context.Context, msg queue.ShardMessage, rows []*models.TrackingResult) {
	if w.volumes == nil {
		return
	}
	code := locationCode(msg.Country)
	volumes, err := w.volumes.BatchVolumes(ctx, promptTexts(msg.Prompts), code)
	if err != nil {
		w.logger.Warn("volume lookup failed", "error", err)
		return
	}
	stampVolumes(rows, volumes, code, w.now())
}

// settle records the shard on the batch and emails the outcome. A shard
// with at least one fulfilled result counts as completed.
func (w *BrightDataWorker) settle(ctx context.Context, msg queue.ShardMessage, fulfilled int) {
	if msg.Nightly || msg.JobBatchID == nil {
		return
	}

	succeeded := fulfilled > 0
	if _, err := w.batches.RecordShard(ctx, *msg.JobBatchID, succeeded); err != nil {
		w.logger.Error("record shard", "job_batch_id", msg.JobBatchID, "error", err)
	}
	if succeeded {
		w.mailer.ShardSucceeded(ctx, msg)
	} else {
		w.mailer.ShardFailed(ctx, msg, "no prompts produced a response")
	}
}

// failShard handles non-retryable shard-level failures: every result is
// forced to failed (fulfilled rows are left alone), the batch counts one
// failed shard, and the message is acknowledged.
func (w *BrightDataWorker) failShard(ctx context.Context, msg queue.ShardMessage, cause error) error {
	reason := failureReason(cause)
	w.logger.Error("shard failed", "job_batch_id", msg.JobBatchID, "reason", reason, "error", cause)

	if msg.Nightly || msg.JobBatchID == nil {
		return nil
	}

	if err := w.store.MarkShardResultsFailed(ctx, *msg.JobBatchID, msg.BatchNumber, reason); err != nil {
		w.logger.Error("mark shard results failed", "error", err)
	}
	if _, err := w.batches.RecordShard(ctx, *msg.JobBatchID, false); err != nil {
		w.logger.Error("record failed shard", "error", err)
	}
	w.mailer.ShardFailed(ctx, msg, reason)
	return nil
}

// matchResults pairs prompts with snapshot results by prompt id first, then
// by exact text equality.
func matchResults(prompts []queue.ShardPrompt, results []brightdata.Result) map[int]brightdata.Result {
	byID := make(map[string]brightdata.Result, len(results))
	byText := make(map[string]brightdata.Result, len(results))
	for _, r := range results {
		if r.PromptID != "" {
			byID[r.PromptID] = r
		}
		byText[r.Prompt] = r
	}

	out := make(map[int]brightdata.Result, len(prompts))
	for i, p := range prompts {
		if r, ok := byID[p.PromptID.String()]; ok {
			out[i] = r
			continue
		}
		if r, ok := byText[p.Text]; ok {
			out[i] = r
		}
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, providers.ErrUpstreamEmpty):
		return "UpstreamEmpty"
	case errors.Is(err, providers.ErrUpstreamFailed):
		return "UpstreamFailed"
	case errors.Is(err, providers.ErrNoResponse):
		return "NoResponse"
	default:
		return err.Error()
	}
}
