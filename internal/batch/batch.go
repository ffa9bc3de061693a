// Package batch advances the job-batch state machine as shards finish. The
// counters live in the store; this package owns the skip guard and the
// terminal transition.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// ShardOutcome reports what RecordShard did.
type ShardOutcome struct {
	// Applied is false when the retry guard skipped the increment because
	// the counters already summed to total.
	Applied  bool
	Progress store.BatchProgress
	// Final is the terminal status this call wrote, empty if the batch is
	// still in flight or another worker already finished it.
	Final string
}

// Manager advances batch counters and writes the terminal transition.
type Manager struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(st store.Store, logger *slog.Logger) *Manager {
	return &Manager{store: st, logger: logger, now: time.Now}
}

// RecordShard counts one finished shard. Re-delivered messages are absorbed
// by the sum guard: once completed+failed reaches total, further calls are
// no-ops. Only the call whose increment closes the sum writes the terminal
// status, so the transition is race-safe without locking.
func (m *Manager) RecordShard(ctx context.Context, jobBatchID uuid.UUID, succeeded bool) (ShardOutcome, error) {
	progress, err := m.store.GetBatchProgress(ctx, jobBatchID)
	if err != nil {
		return ShardOutcome{}, fmt.Errorf("read batch progress: %w", err)
	}
	if progress.Done() {
		m.logger.Info("batch counters already settled, skipping increment",
			"job_batch_id", jobBatchID, "completed", progress.Completed, "failed", progress.Failed)
		return ShardOutcome{Progress: progress}, nil
	}

	if succeeded {
		progress, err = m.store.IncrementCompletedBatches(ctx, jobBatchID)
	} else {
		progress, err = m.store.IncrementFailedBatches(ctx, jobBatchID)
	}
	if err != nil {
		return ShardOutcome{}, fmt.Errorf("increment batch counter: %w", err)
	}

	out := ShardOutcome{Applied: true, Progress: progress}
	if progress.Completed+progress.Failed != progress.Total {
		return out, nil
	}

	final := terminalStatus(progress)
	opts := []store.BatchUpdateOption{store.WithCompletedAt(m.now())}
	if final == models.BatchStatusFailed {
		opts = append(opts, store.WithErrorMessage("all shards failed"))
	}
	if err := m.store.UpdateJobBatchStatus(ctx, jobBatchID, final, opts...); err != nil {
		return out, fmt.Errorf("write terminal batch status: %w", err)
	}

	m.logger.Info("batch reached terminal state",
		"job_batch_id", jobBatchID, "status", final,
		"completed", progress.Completed, "failed", progress.Failed)
	out.Final = final
	return out, nil
}

func terminalStatus(p store.BatchProgress) string {
	switch {
	case p.Failed == 0:
		return models.BatchStatusCompleted
	case p.Completed == 0:
		return models.BatchStatusFailed
	default:
		return models.BatchStatusCompletedWithErrors
	}
}
