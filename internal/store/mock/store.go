// Package mock provides a function-field Store for tests. Unset methods
// return zero values so each test only wires what it exercises.
package mock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

type MockStore struct {
	PingFunc                    func(ctx context.Context) error
	CreateSubmissionFunc        func(ctx context.Context, batch *models.JobBatch, prompts []*models.Prompt, results []*models.TrackingResult) error
	GetJobBatchFunc             func(ctx context.Context, id uuid.UUID) (*models.JobBatch, error)
	UpdateJobBatchStatusFunc    func(ctx context.Context, id uuid.UUID, status string, opts ...store.BatchUpdateOption) error
	IncrementCompletedFunc      func(ctx context.Context, id uuid.UUID) (store.BatchProgress, error)
	IncrementFailedFunc         func(ctx context.Context, id uuid.UUID) (store.BatchProgress, error)
	GetBatchProgressFunc        func(ctx context.Context, id uuid.UUID) (store.BatchProgress, error)
	GetPromptFunc               func(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ListEnabledPromptsFunc      func(ctx context.Context, projectID uuid.UUID) ([]*models.Prompt, error)
	GetTrackingResultFunc       func(ctx context.Context, id uuid.UUID) (*models.TrackingResult, error)
	GetResultByTaskIDFunc       func(ctx context.Context, taskID string) (*models.TrackingResult, error)
	SetResultTaskFunc           func(ctx context.Context, id uuid.UUID, taskID string) error
	UpdateTrackingResultFunc    func(ctx context.Context, result *models.TrackingResult) error
	InsertTrackingResultFunc    func(ctx context.Context, result *models.TrackingResult) error
	MarkResultFailedFunc        func(ctx context.Context, id uuid.UUID, reason string) (string, error)
	MarkShardResultsFailedFunc  func(ctx context.Context, jobBatchID uuid.UUID, batchNumber int, reason string) error
	ListShardResultsFunc        func(ctx context.Context, jobBatchID uuid.UUID, batchNumber int) ([]*models.TrackingResult, error)
	UpsertTagFunc               func(ctx context.Context, projectID uuid.UUID, name string) (*models.Tag, error)
	TagPromptsFunc              func(ctx context.Context, tagID uuid.UUID, promptIDs []uuid.UUID) error
	ListScheduledProjectsFunc   func(ctx context.Context) ([]*models.Project, error)
	StampNightlyRunFunc         func(ctx context.Context, projectID uuid.UUID, at time.Time) error
	GetUserSettingsFunc         func(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
}

func (m *MockStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockStore) CreateSubmission(ctx context.Context, batch *models.JobBatch, prompts []*models.Prompt, results []*models.TrackingResult) error {
	if m.CreateSubmissionFunc != nil {
		return m.CreateSubmissionFunc(ctx, batch, prompts, results)
	}
	return nil
}

func (m *MockStore) GetJobBatch(ctx context.Context, id uuid.UUID) (*models.JobBatch, error) {
	if m.GetJobBatchFunc != nil {
		return m.GetJobBatchFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) UpdateJobBatchStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.BatchUpdateOption) error {
	if m.UpdateJobBatchStatusFunc != nil {
		return m.UpdateJobBatchStatusFunc(ctx, id, status, opts...)
	}
	return nil
}

func (m *MockStore) IncrementCompletedBatches(ctx context.Context, id uuid.UUID) (store.BatchProgress, error) {
	if m.IncrementCompletedFunc != nil {
		return m.IncrementCompletedFunc(ctx, id)
	}
	return store.BatchProgress{}, nil
}

func (m *MockStore) IncrementFailedBatches(ctx context.Context, id uuid.UUID) (store.BatchProgress, error) {
	if m.IncrementFailedFunc != nil {
		return m.IncrementFailedFunc(ctx, id)
	}
	return store.BatchProgress{}, nil
}

func (m *MockStore) GetBatchProgress(ctx context.Context, id uuid.UUID) (store.BatchProgress, error) {
	if m.GetBatchProgressFunc != nil {
		return m.GetBatchProgressFunc(ctx, id)
	}
	return store.BatchProgress{}, nil
}

func (m *MockStore) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	if m.GetPromptFunc != nil {
		return m.GetPromptFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) ListEnabledPrompts(ctx context.Context, projectID uuid.UUID) ([]*models.Prompt, error) {
	if m.ListEnabledPromptsFunc != nil {
		return m.ListEnabledPromptsFunc(ctx, projectID)
	}
	return nil, nil
}

func (m *MockStore) GetTrackingResult(ctx context.Context, id uuid.UUID) (*models.TrackingResult, error) {
	if m.GetTrackingResultFunc != nil {
		return m.GetTrackingResultFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) GetTrackingResultByTaskID(ctx context.Context, taskID string) (*models.TrackingResult, error) {
	if m.GetResultByTaskIDFunc != nil {
		return m.GetResultByTaskIDFunc(ctx, taskID)
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) SetResultTask(ctx context.Context, id uuid.UUID, taskID string) error {
	if m.SetResultTaskFunc != nil {
		return m.SetResultTaskFunc(ctx, id, taskID)
	}
	return nil
}

func (m *MockStore) UpdateTrackingResult(ctx context.Context, result *models.TrackingResult) error {
	if m.UpdateTrackingResultFunc != nil {
		return m.UpdateTrackingResultFunc(ctx, result)
	}
	return nil
}

func (m *MockStore) InsertTrackingResult(ctx context.Context, result *models.TrackingResult) error {
	if m.InsertTrackingResultFunc != nil {
		return m.InsertTrackingResultFunc(ctx, result)
	}
	return nil
}

func (m *MockStore) MarkResultFailed(ctx context.Context, id uuid.UUID, reason string) (string, error) {
	if m.MarkResultFailedFunc != nil {
		return m.MarkResultFailedFunc(ctx, id, reason)
	}
	return models.ResultStatusFailed, nil
}

func (m *MockStore) MarkShardResultsFailed(ctx context.Context, jobBatchID uuid.UUID, batchNumber int, reason string) error {
	if m.MarkShardResultsFailedFunc != nil {
		return m.MarkShardResultsFailedFunc(ctx, jobBatchID, batchNumber, reason)
	}
	return nil
}

func (m *MockStore) ListShardResults(ctx context.Context, jobBatchID uuid.UUID, batchNumber int) ([]*models.TrackingResult, error) {
	if m.ListShardResultsFunc != nil {
		return m.ListShardResultsFunc(ctx, jobBatchID, batchNumber)
	}
	return nil, nil
}

func (m *MockStore) UpsertTag(ctx context.Context, projectID uuid.UUID, name string) (*models.Tag, error) {
	if m.UpsertTagFunc != nil {
		return m.UpsertTagFunc(ctx, projectID, name)
	}
	return &models.Tag{ID: uuid.New(), ProjectID: projectID, Name: name}, nil
}

func (m *MockStore) TagPrompts(ctx context.Context, tagID uuid.UUID, promptIDs []uuid.UUID) error {
	if m.TagPromptsFunc != nil {
		return m.TagPromptsFunc(ctx, tagID, promptIDs)
	}
	return nil
}

func (m *MockStore) ListScheduledProjects(ctx context.Context) ([]*models.Project, error) {
	if m.ListScheduledProjectsFunc != nil {
		return m.ListScheduledProjectsFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) StampNightlyRun(ctx context.Context, projectID uuid.UUID, at time.Time) error {
	if m.StampNightlyRunFunc != nil {
		return m.StampNightlyRunFunc(ctx, projectID, at)
	}
	return nil
}

func (m *MockStore) GetUserSettings(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	if m.GetUserSettingsFunc != nil {
		return m.GetUserSettingsFunc(ctx, userID)
	}
	return nil, store.ErrNotFound
}

var _ store.Store = (*MockStore)(nil)
