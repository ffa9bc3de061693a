package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Submissions. CreateSubmission inserts the batch, its prompts and its
	// pending tracking results in one transaction; a failure rolls back all
	// three.
	CreateSubmission(ctx context.Context, batch *models.JobBatch, prompts []*models.Prompt, results []*models.TrackingResult) error

	GetJobBatch(ctx context.Context, id uuid.UUID) (*models.JobBatch, error)
	UpdateJobBatchStatus(ctx context.Context, id uuid.UUID, status string, opts ...BatchUpdateOption) error
	// IncrementCompletedBatches and IncrementFailedBatches atomically advance
	// one counter and return the post-increment progress. Increments are
	// serializable at the store.
	IncrementCompletedBatches(ctx context.Context, id uuid.UUID) (BatchProgress, error)
	IncrementFailedBatches(ctx context.Context, id uuid.UUID) (BatchProgress, error)
	GetBatchProgress(ctx context.Context, id uuid.UUID) (BatchProgress, error)

	GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ListEnabledPrompts(ctx context.Context, projectID uuid.UUID) ([]*models.Prompt, error)

	GetTrackingResult(ctx context.Context, id uuid.UUID) (*models.TrackingResult, error)
	GetTrackingResultByTaskID(ctx context.Context, taskID string) (*models.TrackingResult, error)
	SetResultTask(ctx context.Context, id uuid.UUID, taskID string) error
	UpdateTrackingResult(ctx context.Context, result *models.TrackingResult) error
	InsertTrackingResult(ctx context.Context, result *models.TrackingResult) error
	// MarkResultFailed transitions a single result to failed unless it is
	// already fulfilled (late-failure guard). Returns the row's final status.
	MarkResultFailed(ctx context.Context, id uuid.UUID, reason string) (string, error)
	MarkShardResultsFailed(ctx context.Context, jobBatchID uuid.UUID, batchNumber int, reason string) error
	ListShardResults(ctx context.Context, jobBatchID uuid.UUID, batchNumber int) ([]*models.TrackingResult, error)

	UpsertTag(ctx context.Context, projectID uuid.UUID, name string) (*models.Tag, error)
	TagPrompts(ctx context.Context, tagID uuid.UUID, promptIDs []uuid.UUID) error

	ListScheduledProjects(ctx context.Context) ([]*models.Project, error)
	StampNightlyRun(ctx context.Context, projectID uuid.UUID, at time.Time) error
	GetUserSettings(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
}

// BatchProgress is a snapshot of a batch's counters.
type BatchProgress struct {
	Completed int
	Failed    int
	Total     int
	Status    string
}

// Done reports whether every shard has been accounted for.
func (p BatchProgress) Done() bool {
	return p.Completed+p.Failed >= p.Total
}

type batchUpdateParams struct {
	ErrorMessage *string
	CompletedAt  *time.Time
}

type BatchUpdateOption func(*batchUpdateParams)

func WithErrorMessage(msg string) BatchUpdateOption {
	return func(p *batchUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithCompletedAt(t time.Time) BatchUpdateOption {
	return func(p *batchUpdateParams) {
		p.CompletedAt = &t
	}
}
