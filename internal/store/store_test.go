package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ranktracker_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedProject inserts a project row directly; projects have no store method
// because they are owned by the dashboard service.
func seedProject(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO projects (id, user_id, name) VALUES ($1, $2, $3)`,
		id, userID, "test-project")
	require.NoError(t, err)
	return id
}

func seedScheduledProject(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, frequency string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO projects (id, user_id, name, scheduler_frequency) VALUES ($1, $2, $3, $4)`,
		id, userID, "scheduled-project", frequency)
	require.NoError(t, err)
	return id
}

// newSubmission builds a batch with one prompt per text, all in shard 0.
func newSubmission(userID, projectID uuid.UUID, texts ...string) (*models.JobBatch, []*models.Prompt, []*models.TrackingResult) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	batch := &models.JobBatch{
		ID:             uuid.New(),
		UserID:         userID,
		ProjectID:      projectID,
		Email:          "owner@example.com",
		TotalPrompts:   len(texts),
		TotalBatches:   1,
		Status:         models.BatchStatusPending,
		OpenAIKey:      "sk-test",
		OpenAIModel:    "gpt-4o",
		BrandMentions:  []string{"Acme"},
		DomainMentions: []string{"acme.com"},
		Tags:           []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var prompts []*models.Prompt
	var results []*models.TrackingResult
	for _, text := range texts {
		p := &models.Prompt{
			ID:             uuid.New(),
			ProjectID:      projectID,
			UserID:         userID,
			Text:           text,
			Enabled:        true,
			BrandMentions:  []string{"Acme"},
			DomainMentions: []string{"acme.com"},
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		prompts = append(prompts, p)
		results = append(results, &models.TrackingResult{
			ID:         uuid.New(),
			PromptID:   p.ID,
			Prompt:     text,
			ProjectID:  projectID,
			UserID:     userID,
			JobBatchID: &batch.ID,
			Status:     models.ResultStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return batch, prompts, results
}

// --- Submission Tests ---

func TestCreateSubmission(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm", "best erp")

	err := s.CreateSubmission(ctx, batch, prompts, results)
	require.NoError(t, err)

	got, err := s.GetJobBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPending, got.Status)
	assert.Equal(t, 2, got.TotalPrompts)
	assert.Equal(t, 0, got.CompletedBatches)
	assert.Equal(t, []string{"Acme"}, got.BrandMentions)

	p, err := s.GetPrompt(ctx, prompts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "best crm", p.Text)
	assert.True(t, p.Enabled)

	shard, err := s.ListShardResults(ctx, batch.ID, 0)
	require.NoError(t, err)
	require.Len(t, shard, 2)
	assert.Equal(t, models.ResultStatusPending, shard[0].Status)
	require.NotNil(t, shard[0].JobBatchID)
	assert.Equal(t, batch.ID, *shard[0].JobBatchID)
}

func TestCreateSubmission_RollsBackOnFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")

	// Break the prompt FK so the second insert in the transaction fails.
	prompts[0].ProjectID = uuid.New()

	err := s.CreateSubmission(ctx, batch, prompts, results)
	require.Error(t, err)

	_, err = s.GetJobBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateSubmission_DuplicateBatchID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	batch2, prompts2, results2 := newSubmission(userID, projectID, "best erp")
	batch2.ID = batch.ID
	err := s.CreateSubmission(ctx, batch2, prompts2, results2)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestCreateSubmission_PromptConflictIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	// Re-submitting the same prompt must not error; prompts upsert is DO NOTHING.
	batch2, _, results2 := newSubmission(userID, projectID, "best crm")
	results2[0].PromptID = prompts[0].ID
	err := s.CreateSubmission(ctx, batch2, prompts, results2)
	require.NoError(t, err)
}

// --- Batch Counter Tests ---

func TestIncrementBatchCounters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "a", "b", "c")
	batch.TotalBatches = 3
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	p, err := s.IncrementCompletedBatches(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 0, p.Failed)
	assert.Equal(t, 3, p.Total)
	assert.False(t, p.Done())

	p, err = s.IncrementFailedBatches(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.False(t, p.Done())

	p, err = s.IncrementCompletedBatches(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, p.Done())

	got, err := s.GetBatchProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Completed)
	assert.Equal(t, 1, got.Failed)
}

func TestIncrementBatchCounters_SumGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "a")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	_, err := s.IncrementCompletedBatches(ctx, batch.ID)
	require.NoError(t, err)

	// completed + failed may never exceed total; the database enforces it.
	_, err = s.IncrementCompletedBatches(ctx, batch.ID)
	assert.Error(t, err)
	_, err = s.IncrementFailedBatches(ctx, batch.ID)
	assert.Error(t, err)

	got, err := s.GetBatchProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 0, got.Failed)
}

func TestIncrementBatchCounters_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.IncrementCompletedBatches(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateJobBatchStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "a")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	completedAt := time.Now().UTC().Truncate(time.Microsecond)
	err := s.UpdateJobBatchStatus(ctx, batch.ID, models.BatchStatusFailed,
		store.WithErrorMessage("all shards failed"),
		store.WithCompletedAt(completedAt))
	require.NoError(t, err)

	got, err := s.GetJobBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "all shards failed", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completedAt, got.CompletedAt.UTC().Truncate(time.Microsecond))
}

func TestUpdateJobBatchStatus_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobBatchStatus(context.Background(), uuid.New(), models.BatchStatusProcessing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Tracking Result Tests ---

func TestSetResultTaskAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	err := s.SetResultTask(ctx, results[0].ID, "task-123")
	require.NoError(t, err)

	got, err := s.GetTrackingResultByTaskID(ctx, "task-123")
	require.NoError(t, err)
	assert.Equal(t, results[0].ID, got.ID)
	assert.Equal(t, models.ResultStatusProcessing, got.Status)
	assert.NotZero(t, got.Timestamp)
}

func TestGetTrackingResultByTaskID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetTrackingResultByTaskID(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateTrackingResult_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	r := results[0]
	taskID := "task-enriched"
	present := true
	sentiment, salience, lcp := 72, 80, 65
	intent := "commercial"
	r.ExternalTaskID = &taskID
	r.Status = models.ResultStatusFulfilled
	r.IsPresent = &present
	r.Sentiment = &sentiment
	r.Salience = &salience
	r.LCP = &lcp
	r.Intent = &intent
	r.Response = []byte(`{"answer":"Acme is the best CRM."}`)
	r.Citations = []models.Citation{{Title: "Review", Domain: "acme.com", URL: "acme.com/review"}}
	r.SERPFeatures = map[string]int{"links": 3, "citations": 1}
	r.AIMonthlyTrends = []models.MonthlyTrend{{Year: 2026, Month: 7, Volume: 1200}}
	r.Timestamp = time.Now().UnixMilli()
	r.Source = models.SourceDataForSEO

	require.NoError(t, s.UpdateTrackingResult(ctx, r))

	got, err := s.GetTrackingResult(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFulfilled, got.Status)
	require.NotNil(t, got.Sentiment)
	assert.Equal(t, 72, *got.Sentiment)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "acme.com", got.Citations[0].Domain)
	assert.Equal(t, map[string]int{"links": 3, "citations": 1}, got.SERPFeatures)
	require.Len(t, got.AIMonthlyTrends, 1)
	assert.Equal(t, 1200, got.AIMonthlyTrends[0].Volume)
	assert.Equal(t, models.SourceDataForSEO, got.Source)
}

func TestMarkResultFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	status, err := s.MarkResultFailed(ctx, results[0].ID, "task rejected")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, status)

	got, err := s.GetTrackingResult(ctx, results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, got.Status)
	assert.Contains(t, string(got.Response), "task rejected")
}

func TestMarkResultFailed_DoesNotDowngradeFulfilled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	r := results[0]
	r.Status = models.ResultStatusFulfilled
	r.Response = []byte(`{"answer":"ok"}`)
	require.NoError(t, s.UpdateTrackingResult(ctx, r))

	status, err := s.MarkResultFailed(ctx, r.ID, "late failure")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFulfilled, status)

	got, err := s.GetTrackingResult(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFulfilled, got.Status)
	assert.NotContains(t, string(got.Response), "late failure")
}

func TestMarkResultFailed_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.MarkResultFailed(context.Background(), uuid.New(), "reason")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkShardResultsFailed_SkipsFulfilled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "a", "b")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	fulfilled := results[0]
	fulfilled.Status = models.ResultStatusFulfilled
	fulfilled.Response = []byte(`{"answer":"ok"}`)
	require.NoError(t, s.UpdateTrackingResult(ctx, fulfilled))

	require.NoError(t, s.MarkShardResultsFailed(ctx, batch.ID, 0, "poll timeout"))

	shard, err := s.ListShardResults(ctx, batch.ID, 0)
	require.NoError(t, err)
	require.Len(t, shard, 2)
	byID := map[uuid.UUID]string{}
	for _, r := range shard {
		byID[r.ID] = r.Status
	}
	assert.Equal(t, models.ResultStatusFulfilled, byID[results[0].ID])
	assert.Equal(t, models.ResultStatusFailed, byID[results[1].ID])
}

func TestInsertTrackingResult_NightlyDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "best crm")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	now := time.Now().UTC().Truncate(time.Microsecond)
	taskID := "nightly-task-1"
	fresh := &models.TrackingResult{
		ID:             uuid.New(),
		PromptID:       prompts[0].ID,
		Prompt:         prompts[0].Text,
		ProjectID:      projectID,
		UserID:         userID,
		ExternalTaskID: &taskID,
		Status:         models.ResultStatusFulfilled,
		Source:         models.SourceDataForSEONightly,
		Timestamp:      now.UnixMilli(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.InsertTrackingResult(ctx, fresh))

	// A redelivered callback for the same nightly task must not insert twice.
	dup := *fresh
	dup.ID = uuid.New()
	err := s.InsertTrackingResult(ctx, &dup)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	// Same task id under a non-nightly source is allowed.
	other := *fresh
	other.ID = uuid.New()
	other.Source = models.SourceDataForSEO
	require.NoError(t, s.InsertTrackingResult(ctx, &other))
}

// --- Prompt Tests ---

func TestListEnabledPrompts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "first", "second")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	_, err := pool.Exec(ctx, `UPDATE prompts SET enabled = FALSE WHERE id = $1`, prompts[1].ID)
	require.NoError(t, err)

	got, err := s.ListEnabledPrompts(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Text)
}

// --- Tag Tests ---

func TestUpsertTag_CaseInsensitiveReuse(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)

	first, err := s.UpsertTag(ctx, projectID, "Competitors")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTagColor, first.Color)

	second, err := s.UpsertTag(ctx, projectID, "competitors")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Competitors", second.Name)

	// Same name in another project is a distinct tag.
	otherProject := seedProject(t, pool, userID)
	third, err := s.UpsertTag(ctx, otherProject, "competitors")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestTagPrompts_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	projectID := seedProject(t, pool, userID)
	batch, prompts, results := newSubmission(userID, projectID, "a", "b")
	require.NoError(t, s.CreateSubmission(ctx, batch, prompts, results))

	tag, err := s.UpsertTag(ctx, projectID, "priority")
	require.NoError(t, err)

	ids := []uuid.UUID{prompts[0].ID, prompts[1].ID}
	require.NoError(t, s.TagPrompts(ctx, tag.ID, ids))
	require.NoError(t, s.TagPrompts(ctx, tag.ID, ids))

	var count int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM prompt_tags WHERE tag_id = $1`, tag.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// --- Scheduler Tests ---

func TestListScheduledProjectsAndStamp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	seedProject(t, pool, userID) // no frequency, excluded
	scheduledID := seedScheduledProject(t, pool, userID, models.FrequencyDaily)

	projects, err := s.ListScheduledProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, scheduledID, projects[0].ID)
	require.NotNil(t, projects[0].SchedulerFrequency)
	assert.Equal(t, models.FrequencyDaily, *projects[0].SchedulerFrequency)
	assert.Nil(t, projects[0].LastNightlyRunAt)

	ranAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.StampNightlyRun(ctx, scheduledID, ranAt))

	projects, err = s.ListScheduledProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.NotNil(t, projects[0].LastNightlyRunAt)
	assert.Equal(t, ranAt, projects[0].LastNightlyRunAt.UTC().Truncate(time.Microsecond))
}

func TestStampNightlyRun_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.StampNightlyRun(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- User Settings Tests ---

func TestGetUserSettings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, openai_key, openai_model) VALUES ($1, $2, $3)`,
		userID, "sk-nightly", "gpt-4o-mini")
	require.NoError(t, err)

	got, err := s.GetUserSettings(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "sk-nightly", got.OpenAIKey)
	assert.Equal(t, "gpt-4o-mini", got.OpenAIModel)

	_, err = s.GetUserSettings(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
