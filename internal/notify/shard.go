package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/cache"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
)

// dedupeTTL bounds how long a succeeded-email marker lives. Callback
// retries arrive within minutes; a day is comfortably past that.
const dedupeTTL = 24 * time.Hour

// ShardMailer decides whether a shard event emails at all and with what
// variables. Email failures are logged, never propagated: a lost email must
// not fail a shard.
type ShardMailer struct {
	notifier Notifier
	cache    cache.Cache
	appURL   string
	logger   *slog.Logger
}

func NewShardMailer(notifier Notifier, c cache.Cache, appURL string, logger *slog.Logger) *ShardMailer {
	return &ShardMailer{
		notifier: notifier,
		cache:    c,
		appURL:   appURL,
		logger:   logger,
	}
}

// ShardSubmitted emails once per shard, guaranteed.
func (s *ShardMailer) ShardSubmitted(ctx context.Context, msg queue.ShardMessage) {
	if s.skip(msg) {
		return
	}
	s.send(ctx, KindSubmitted, msg, nil)
}

// ShardFailed emails once per shard, guaranteed.
func (s *ShardMailer) ShardFailed(ctx context.Context, msg queue.ShardMessage, reason string) {
	if s.skip(msg) {
		return
	}
	s.send(ctx, KindFailed, msg, map[string]string{"reason": reason})
}

// ShardSucceeded emails at most once per shard under the cache marker.
// When the cache is unreachable the email goes out anyway: a duplicate is
// recoverable, a silently dropped notification is not.
func (s *ShardMailer) ShardSucceeded(ctx context.Context, msg queue.ShardMessage) {
	if s.skip(msg) {
		return
	}

	first, err := s.cache.SetNX(ctx, cache.ShardEmailKey(*msg.JobBatchID, msg.BatchNumber), dedupeTTL)
	if err != nil {
		s.logger.Warn("email dedupe cache unavailable, sending without dedupe",
			"job_batch_id", msg.JobBatchID, "error", err)
		first = true
	}
	if !first {
		s.logger.Info("succeeded email already sent for shard",
			"job_batch_id", msg.JobBatchID, "batch_number", msg.BatchNumber)
		return
	}

	s.send(ctx, KindSucceeded, msg, nil)
}

// skip drops nightly shards and shards with no recipient.
func (s *ShardMailer) skip(msg queue.ShardMessage) bool {
	return msg.Nightly || msg.Email == "" || msg.JobBatchID == nil
}

func (s *ShardMailer) send(ctx context.Context, kind Kind, msg queue.ShardMessage, extra map[string]string) {
	vars := map[string]string{
		"job_batch_id": msg.JobBatchID.String(),
		"batch_number": fmt.Sprintf("%d", msg.BatchNumber+1),
		"batch_total":  fmt.Sprintf("%d", msg.TotalBatches),
		"prompt_count": fmt.Sprintf("%d", len(msg.Prompts)),
		"results_url":  fmt.Sprintf("%s/projects/%s/results", s.appURL, msg.ProjectID),
	}
	for k, v := range extra {
		vars[k] = v
	}

	if err := s.notifier.Send(ctx, kind, msg.Email, vars); err != nil {
		s.logger.Error("shard notification failed",
			"kind", kind, "job_batch_id", msg.JobBatchID, "error", err)
	}
}
