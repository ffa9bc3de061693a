package dispatch

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	storemock "github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store/mock"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

func doneTask(id string) dataforseo.Task {
	return dataforseo.Task{
		ID:         id,
		StatusCode: 20000,
		Result: []dataforseo.TaskResult{{
			Markdown: "Plain answer with nothing branded.",
			Sources:  []dataforseo.Source{{Title: "ref", URL: "https://example.com/a"}},
		}},
	}
}

func failedTask(id string) dataforseo.Task {
	return dataforseo.Task{ID: id, StatusCode: 40501, StatusMessage: "task not found"}
}

func callbackFixture(t *testing.T, st *storemock.MockStore) (*CallbackProcessor, *recordingNotifier) {
	t.Helper()
	rec := &recordingNotifier{}
	p := NewCallbackProcessor(st, testBatches(st), testMailer(rec),
		&fakeVolumes{}, testLLMFactory, "gpt-test", slog.Default())
	return p, rec
}

func batchFixture(st *storemock.MockStore, taskID string, shard []*models.TrackingResult) (*models.TrackingResult, *models.JobBatch) {
	jbID := uuid.New()
	jb := &models.JobBatch{
		ID:            jbID,
		UserID:        uuid.New(),
		ProjectID:     uuid.New(),
		Email:         "user@example.com",
		TotalBatches:  1,
		Status:        models.BatchStatusProcessing,
		OpenAIKey:     "sk-test",
		OpenAIModel:   "gpt-test",
		BrandMentions: []string{"Acme"},
	}
	tid := taskID
	r := &models.TrackingResult{
		ID:             uuid.New(),
		PromptID:       uuid.New(),
		Prompt:         "best crm software",
		UserID:         jb.UserID,
		ProjectID:      jb.ProjectID,
		JobBatchID:     &jbID,
		BatchNumber:    0,
		ExternalTaskID: &tid,
		Status:         models.ResultStatusProcessing,
	}

	st.GetResultByTaskIDFunc = func(ctx context.Context, id string) (*models.TrackingResult, error) {
		if id != taskID {
			return nil, store.ErrNotFound
		}
		return r, nil
	}
	st.GetJobBatchFunc = func(ctx context.Context, id uuid.UUID) (*models.JobBatch, error) {
		return jb, nil
	}
	st.ListShardResultsFunc = func(ctx context.Context, jobBatchID uuid.UUID, batchNumber int) ([]*models.TrackingResult, error) {
		return shard, nil
	}
	return r, jb
}

func TestCallbackFulfillsAndSettlesShard(t *testing.T) {
	st := progressStore(1)
	var terminal string
	st.UpdateJobBatchStatusFunc = func(ctx context.Context, id uuid.UUID, status string, opts ...store.BatchUpdateOption) error {
		terminal = status
		return nil
	}
	var updated *models.TrackingResult
	st.UpdateTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		updated = r
		return nil
	}

	fulfilled := &models.TrackingResult{Status: models.ResultStatusFulfilled}
	r, _ := batchFixture(st, "task-1", []*models.TrackingResult{fulfilled})

	p, rec := callbackFixture(t, st)
	if err := p.Process(context.Background(), dataforseo.CallbackContext{}, doneTask("task-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if updated == nil {
		t.Fatal("tracking result not updated")
	}
	if updated.Status != models.ResultStatusFulfilled {
		t.Errorf("status = %q", updated.Status)
	}
	if updated.Source != "dataforseo" {
		t.Errorf("source = %q", updated.Source)
	}
	if updated.ID != r.ID {
		t.Errorf("updated wrong row: %s", updated.ID)
	}
	if terminal != models.BatchStatusCompleted {
		t.Errorf("terminal status = %q, want completed", terminal)
	}
	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != "succeeded" {
		t.Errorf("emails = %v", kinds)
	}
}

func TestCallbackWebSearchReflectsSources(t *testing.T) {
	st := progressStore(1)
	var updated *models.TrackingResult
	st.UpdateTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		updated = r
		return nil
	}

	// Batch did not request web search, but the response cites sources.
	batchFixture(st, "task-1", nil)

	p, _ := callbackFixture(t, st)
	if err := p.Process(context.Background(), dataforseo.CallbackContext{}, doneTask("task-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if updated == nil {
		t.Fatal("tracking result not updated")
	}
	if !updated.WebSearch {
		t.Error("web_search = false for a sourced response")
	}

	// No sources and no web search requested stays false.
	updated = nil
	task := doneTask("task-2")
	task.Result[0].Sources = nil
	batchFixture(st, "task-2", nil)
	if err := p.Process(context.Background(), dataforseo.CallbackContext{}, task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if updated == nil {
		t.Fatal("tracking result not updated")
	}
	if updated.WebSearch {
		t.Error("web_search = true for a plain response")
	}
}

func TestCallbackLateFailureKeepsFulfilledResult(t *testing.T) {
	st := progressStore(1)
	st.MarkResultFailedFunc = func(ctx context.Context, id uuid.UUID, reason string) (string, error) {
		return models.ResultStatusFulfilled, nil
	}
	batchFixture(st, "task-1", nil)
	settled := false
	st.ListShardResultsFunc = func(ctx context.Context, jobBatchID uuid.UUID, batchNumber int) ([]*models.TrackingResult, error) {
		settled = true
		return nil, nil
	}

	p, rec := callbackFixture(t, st)
	if err := p.Process(context.Background(), dataforseo.CallbackContext{}, failedTask("task-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if settled {
		t.Error("shard settled after a late failure on a fulfilled result")
	}
	if len(rec.kinds()) != 0 {
		t.Errorf("emails = %v", rec.kinds())
	}
}

func TestCallbackAllFailedSettlesShardAsFailed(t *testing.T) {
	st := progressStore(1)
	st.MarkResultFailedFunc = func(ctx context.Context, id uuid.UUID, reason string) (string, error) {
		if reason != "UpstreamFailed: 40501 task not found" {
			t.Errorf("reason = %q", reason)
		}
		return models.ResultStatusFailed, nil
	}
	var terminal string
	st.UpdateJobBatchStatusFunc = func(ctx context.Context, id uuid.UUID, status string, opts ...store.BatchUpdateOption) error {
		terminal = status
		return nil
	}

	failed := &models.TrackingResult{Status: models.ResultStatusFailed}
	batchFixture(st, "task-1", []*models.TrackingResult{failed})

	p, rec := callbackFixture(t, st)
	if err := p.Process(context.Background(), dataforseo.CallbackContext{}, failedTask("task-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if terminal != models.BatchStatusFailed {
		t.Errorf("terminal status = %q, want failed", terminal)
	}
	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != "failed" {
		t.Errorf("emails = %v", kinds)
	}
}

func TestCallbackWaitsForSiblingResults(t *testing.T) {
	st := progressStore(1)
	st.UpdateTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error { return nil }

	// A sibling is still processing, so the shard must not settle yet.
	shard := []*models.TrackingResult{
		{Status: models.ResultStatusFulfilled},
		{Status: models.ResultStatusProcessing},
	}
	batchFixture(st, "task-1", shard)

	recorded := false
	st.IncrementCompletedFunc = func(ctx context.Context, id uuid.UUID) (store.BatchProgress, error) {
		recorded = true
		return store.BatchProgress{}, nil
	}

	p, rec := callbackFixture(t, st)
	if err := p.Process(context.Background(), dataforseo.CallbackContext{}, doneTask("task-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if recorded {
		t.Error("shard recorded while a sibling was still processing")
	}
	if len(rec.kinds()) != 0 {
		t.Errorf("emails = %v", rec.kinds())
	}
}

func TestCallbackNightlyInsertsFreshRow(t *testing.T) {
	cc := dataforseo.CallbackContext{
		UserID:    uuid.New(),
		ProjectID: uuid.New(),
		PromptID:  uuid.New(),
		IsNightly: true,
	}

	st := progressStore(1)
	st.GetPromptFunc = func(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
		return &models.Prompt{ID: cc.PromptID, Text: "best crm software"}, nil
	}
	st.GetUserSettingsFunc = func(ctx context.Context, id uuid.UUID) (*models.UserSettings, error) {
		return &models.UserSettings{UserID: cc.UserID, OpenAIKey: "sk-user", OpenAIModel: "gpt-user"}, nil
	}
	var inserted *models.TrackingResult
	st.InsertTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		inserted = r
		return nil
	}

	p, rec := callbackFixture(t, st)
	if err := p.Process(context.Background(), cc, doneTask("task-9")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if inserted == nil {
		t.Fatal("no row inserted")
	}
	if inserted.Source != "dataforseo-nightly" {
		t.Errorf("source = %q", inserted.Source)
	}
	if inserted.Status != models.ResultStatusFulfilled {
		t.Errorf("status = %q", inserted.Status)
	}
	if inserted.JobBatchID != nil {
		t.Error("nightly row has a job batch")
	}
	if inserted.ExternalTaskID == nil || *inserted.ExternalTaskID != "task-9" {
		t.Errorf("task id = %v", inserted.ExternalTaskID)
	}
	if len(rec.kinds()) != 0 {
		t.Errorf("nightly sent emails: %v", rec.kinds())
	}
}

func TestCallbackNightlyIgnoresDuplicates(t *testing.T) {
	cc := dataforseo.CallbackContext{UserID: uuid.New(), ProjectID: uuid.New(), PromptID: uuid.New(), IsNightly: true}

	st := progressStore(1)
	st.GetPromptFunc = func(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
		return &models.Prompt{ID: cc.PromptID, Text: "best crm software"}, nil
	}
	st.InsertTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		return store.ErrDuplicateKey
	}

	p, _ := callbackFixture(t, st)
	if err := p.Process(context.Background(), cc, doneTask("task-9")); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestCallbackNightlyFailureLeavesNoRow(t *testing.T) {
	cc := dataforseo.CallbackContext{UserID: uuid.New(), ProjectID: uuid.New(), PromptID: uuid.New(), IsNightly: true}

	st := progressStore(1)
	st.InsertTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		t.Error("failed nightly task inserted a row")
		return nil
	}

	p, _ := callbackFixture(t, st)
	if err := p.Process(context.Background(), cc, failedTask("task-9")); err != nil {
		t.Fatalf("Process: %v", err)
	}
}
