package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/batch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/notify"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// submissionSpacing is the pause between per-prompt task submissions within
// a shard, keeping us under the provider's rate limits.
const submissionSpacing = time.Second

// DataForSEOWorker submits one scrape task per prompt; the results come
// back later through the callback endpoint.
type DataForSEOWorker struct {
	store       store.Store
	batches     *batch.Manager
	mailer      *notify.ShardMailer
	tasks       TaskClient
	callbackURL string
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration)
}

func NewDataForSEOWorker(st store.Store, batches *batch.Manager, mailer *notify.ShardMailer,
	tasks TaskClient, callbackURL string, logger *slog.Logger) *DataForSEOWorker {
	return &DataForSEOWorker{
		store:       st,
		batches:     batches,
		mailer:      mailer,
		tasks:       tasks,
		callbackURL: callbackURL,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Handle submits every prompt in the shard and stamps the returned task ids
// onto the pending rows. Nightly shards have no rows to stamp; the task's
// postback context is the only correlation.
func (w *DataForSEOWorker) Handle(ctx context.Context, msg queue.ShardMessage) error {
	if msg.Service != providers.DataForSEO {
		w.logger.Warn("dropping shard addressed to another service", "service", msg.Service)
		return nil
	}

	submitted := 0
	for i, p := range msg.Prompts {
		if i > 0 {
			w.sleep(ctx, submissionSpacing)
		}

		taskID, err := w.submit(ctx, msg, p)
		if err != nil {
			if isTransient(err) {
				return classify(err)
			}
			w.logger.Error("task submission rejected", "prompt_id", p.PromptID, "error", err)
			if !msg.Nightly {
				if _, err := w.store.MarkResultFailed(ctx, p.TrackingID, failureReason(err)); err != nil {
					w.logger.Error("mark result failed", "tracking_id", p.TrackingID, "error", err)
				}
			}
			continue
		}

		if !msg.Nightly {
			if err := w.store.SetResultTask(ctx, p.TrackingID, taskID); err != nil {
				w.logger.Error("stamp task id", "tracking_id", p.TrackingID, "task_id", taskID, "error", err)
			}
		}
		submitted++
	}

	if msg.Nightly || msg.JobBatchID == nil {
		return nil
	}

	if submitted == 0 {
		// No callbacks will ever arrive for this shard; settle it now.
		if _, err := w.batches.RecordShard(ctx, *msg.JobBatchID, false); err != nil {
			w.logger.Error("record failed shard", "job_batch_id", msg.JobBatchID, "error", err)
		}
		w.mailer.ShardFailed(ctx, msg, "no tasks could be submitted")
		return nil
	}

	if err := w.store.UpdateJobBatchStatus(ctx, *msg.JobBatchID, models.BatchStatusProcessing); err != nil {
		w.logger.Error("update batch status", "job_batch_id", msg.JobBatchID, "error", err)
	}
	w.mailer.ShardSubmitted(ctx, msg)
	return nil
}

func (w *DataForSEOWorker) submit(ctx context.Context, msg queue.ShardMessage, p queue.ShardPrompt) (string, error) {
	cc := dataforseo.CallbackContext{
		UserID:    msg.UserID,
		ProjectID: msg.ProjectID,
		PromptID:  p.PromptID,
		IsNightly: msg.Nightly,
	}
	country := p.Country
	if country == "" {
		country = msg.Country
	}

	var taskID string
	err := withBackoff(ctx, func() error {
		id, err := w.tasks.CreateTask(ctx, dataforseo.TaskRequest{
			Prompt:      p.Text,
			Country:     country,
			WebSearch:   msg.WebSearch,
			PostbackURL: fmt.Sprintf("%s?%s", w.callbackURL, cc.Encode().Encode()),
		})
		if err != nil {
			return err
		}
		taskID = id
		return nil
	})
	return taskID, err
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
