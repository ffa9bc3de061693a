package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Submissions ---

func (s *PostgresStore) CreateSubmission(ctx context.Context, batch *models.JobBatch, prompts []*models.Prompt, results []*models.TrackingResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO job_batches (id, user_id, project_id, email, total_prompts, total_batches,
		   completed_batches, failed_batches, status, openai_key, openai_model, web_search,
		   country, brand_mentions, domain_mentions, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		batch.ID, batch.UserID, batch.ProjectID, batch.Email, batch.TotalPrompts, batch.TotalBatches,
		batch.Status, batch.OpenAIKey, batch.OpenAIModel, batch.WebSearch,
		batch.Country, batch.BrandMentions, batch.DomainMentions, batch.Tags,
		batch.CreatedAt, batch.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert job batch: %w", err)
	}

	for _, p := range prompts {
		_, err = tx.Exec(ctx,
			`INSERT INTO prompts (id, project_id, user_id, text, enabled, brand_mentions, domain_mentions, country, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO NOTHING`,
			p.ID, p.ProjectID, p.UserID, p.Text, p.Enabled, p.BrandMentions, p.DomainMentions,
			p.Country, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert prompt: %w", err)
		}
	}

	for _, r := range results {
		_, err = tx.Exec(ctx,
			`INSERT INTO tracking_results (id, prompt_id, prompt, project_id, user_id, job_batch_id,
			   batch_number, status, web_search, timestamp, source, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.ID, r.PromptID, r.Prompt, r.ProjectID, r.UserID, r.JobBatchID,
			r.BatchNumber, r.Status, r.WebSearch, r.Timestamp, r.Source, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert tracking result: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// --- Job batches ---

const batchColumns = `id, user_id, project_id, email, total_prompts, total_batches,
	completed_batches, failed_batches, status, openai_key, openai_model, web_search,
	country, brand_mentions, domain_mentions, tags, error_message, completed_at, created_at, updated_at`

func scanBatch(row pgx.Row) (*models.JobBatch, error) {
	var b models.JobBatch
	err := row.Scan(&b.ID, &b.UserID, &b.ProjectID, &b.Email, &b.TotalPrompts, &b.TotalBatches,
		&b.CompletedBatches, &b.FailedBatches, &b.Status, &b.OpenAIKey, &b.OpenAIModel, &b.WebSearch,
		&b.Country, &b.BrandMentions, &b.DomainMentions, &b.Tags, &b.ErrorMessage, &b.CompletedAt,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job batch: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) GetJobBatch(ctx context.Context, id uuid.UUID) (*models.JobBatch, error) {
	return scanBatch(s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM job_batches WHERE id = $1`, id))
}

func (s *PostgresStore) UpdateJobBatchStatus(ctx context.Context, id uuid.UUID, status string, opts ...BatchUpdateOption) error {
	params := &batchUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	query := `UPDATE job_batches SET status = $2, updated_at = NOW()`
	args := []any{id, status}
	argIdx := 3

	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.CompletedAt != nil {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, *params.CompletedAt)
		argIdx++
	}
	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementCompletedBatches(ctx context.Context, id uuid.UUID) (BatchProgress, error) {
	return s.incrementCounter(ctx, id, "completed_batches")
}

func (s *PostgresStore) IncrementFailedBatches(ctx context.Context, id uuid.UUID) (BatchProgress, error) {
	return s.incrementCounter(ctx, id, "failed_batches")
}

func (s *PostgresStore) incrementCounter(ctx context.Context, id uuid.UUID, column string) (BatchProgress, error) {
	var p BatchProgress
	// column is one of two compile-time constants, never user input.
	query := fmt.Sprintf(
		`UPDATE job_batches SET %s = %s + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING completed_batches, failed_batches, total_batches, status`, column, column)
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.Completed, &p.Failed, &p.Total, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return BatchProgress{}, ErrNotFound
	}
	if err != nil {
		return BatchProgress{}, fmt.Errorf("increment %s: %w", column, err)
	}
	return p, nil
}

func (s *PostgresStore) GetBatchProgress(ctx context.Context, id uuid.UUID) (BatchProgress, error) {
	var p BatchProgress
	err := s.pool.QueryRow(ctx,
		`SELECT completed_batches, failed_batches, total_batches, status FROM job_batches WHERE id = $1`, id,
	).Scan(&p.Completed, &p.Failed, &p.Total, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return BatchProgress{}, ErrNotFound
	}
	if err != nil {
		return BatchProgress{}, fmt.Errorf("get batch progress: %w", err)
	}
	return p, nil
}

// --- Prompts ---

const promptColumns = `id, project_id, user_id, text, enabled, brand_mentions, domain_mentions, country, created_at, updated_at`

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(&p.ID, &p.ProjectID, &p.UserID, &p.Text, &p.Enabled,
		&p.BrandMentions, &p.DomainMentions, &p.Country, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prompt: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	return scanPrompt(s.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id))
}

func (s *PostgresStore) ListEnabledPrompts(ctx context.Context, projectID uuid.UUID) ([]*models.Prompt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE project_id = $1 AND enabled ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list enabled prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// --- Tracking results ---

const resultColumns = `id, prompt_id, prompt, project_id, user_id, job_batch_id, batch_number,
	external_task_id, status, is_present, is_domain_present, sentiment, salience, response,
	citations, mention_count, domain_mention_count, web_search, lcp, actionability,
	intent_classification, serp, ai_search_volume, ai_monthly_trends, ai_volume_fetched_at,
	ai_volume_location_code, timestamp, source, created_at, updated_at`

func scanResult(row pgx.Row) (*models.TrackingResult, error) {
	var r models.TrackingResult
	var citations, serp, trends []byte
	err := row.Scan(&r.ID, &r.PromptID, &r.Prompt, &r.ProjectID, &r.UserID, &r.JobBatchID, &r.BatchNumber,
		&r.ExternalTaskID, &r.Status, &r.IsPresent, &r.IsDomainPresent, &r.Sentiment, &r.Salience, &r.Response,
		&citations, &r.MentionCount, &r.DomainMentionCount, &r.WebSearch, &r.LCP, &r.Actionability,
		&r.Intent, &serp, &r.AISearchVolume, &trends, &r.AIVolumeFetchedAt,
		&r.AIVolumeLocation, &r.Timestamp, &r.Source, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tracking result: %w", err)
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &r.Citations); err != nil {
			return nil, fmt.Errorf("decode citations: %w", err)
		}
	}
	if len(serp) > 0 {
		if err := json.Unmarshal(serp, &r.SERPFeatures); err != nil {
			return nil, fmt.Errorf("decode serp features: %w", err)
		}
	}
	if len(trends) > 0 {
		if err := json.Unmarshal(trends, &r.AIMonthlyTrends); err != nil {
			return nil, fmt.Errorf("decode monthly trends: %w", err)
		}
	}
	return &r, nil
}

func (s *PostgresStore) GetTrackingResult(ctx context.Context, id uuid.UUID) (*models.TrackingResult, error) {
	return scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM tracking_results WHERE id = $1`, id))
}

func (s *PostgresStore) GetTrackingResultByTaskID(ctx context.Context, taskID string) (*models.TrackingResult, error) {
	return scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM tracking_results WHERE external_task_id = $1
		 ORDER BY created_at DESC LIMIT 1`, taskID))
}

func (s *PostgresStore) SetResultTask(ctx context.Context, id uuid.UUID, taskID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracking_results SET external_task_id = $2, status = $3, timestamp = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, taskID, models.ResultStatusProcessing, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set result task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalResultJSON(r *models.TrackingResult) (citations, serp, trends []byte, err error) {
	if r.Citations != nil {
		if citations, err = json.Marshal(r.Citations); err != nil {
			return nil, nil, nil, fmt.Errorf("encode citations: %w", err)
		}
	}
	if r.SERPFeatures != nil {
		if serp, err = json.Marshal(r.SERPFeatures); err != nil {
			return nil, nil, nil, fmt.Errorf("encode serp features: %w", err)
		}
	}
	if r.AIMonthlyTrends != nil {
		if trends, err = json.Marshal(r.AIMonthlyTrends); err != nil {
			return nil, nil, nil, fmt.Errorf("encode monthly trends: %w", err)
		}
	}
	return citations, serp, trends, nil
}

func (s *PostgresStore) UpdateTrackingResult(ctx context.Context, r *models.TrackingResult) error {
	citations, serp, trends, err := marshalResultJSON(r)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tracking_results SET
		   external_task_id = $2, status = $3, is_present = $4, is_domain_present = $5,
		   sentiment = $6, salience = $7, response = $8, citations = $9,
		   mention_count = $10, domain_mention_count = $11, web_search = $12,
		   lcp = $13, actionability = $14, intent_classification = $15, serp = $16,
		   ai_search_volume = $17, ai_monthly_trends = $18, ai_volume_fetched_at = $19,
		   ai_volume_location_code = $20, timestamp = $21, source = $22, updated_at = NOW()
		 WHERE id = $1`,
		r.ID, r.ExternalTaskID, r.Status, r.IsPresent, r.IsDomainPresent,
		r.Sentiment, r.Salience, r.Response, citations,
		r.MentionCount, r.DomainMentionCount, r.WebSearch,
		r.LCP, r.Actionability, r.Intent, serp,
		r.AISearchVolume, trends, r.AIVolumeFetchedAt,
		r.AIVolumeLocation, r.Timestamp, r.Source)
	if err != nil {
		return fmt.Errorf("update tracking result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertTrackingResult(ctx context.Context, r *models.TrackingResult) error {
	citations, serp, trends, err := marshalResultJSON(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tracking_results (id, prompt_id, prompt, project_id, user_id, job_batch_id,
		   batch_number, external_task_id, status, is_present, is_domain_present, sentiment, salience,
		   response, citations, mention_count, domain_mention_count, web_search, lcp, actionability,
		   intent_classification, serp, ai_search_volume, ai_monthly_trends, ai_volume_fetched_at,
		   ai_volume_location_code, timestamp, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		   $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`,
		r.ID, r.PromptID, r.Prompt, r.ProjectID, r.UserID, r.JobBatchID,
		r.BatchNumber, r.ExternalTaskID, r.Status, r.IsPresent, r.IsDomainPresent, r.Sentiment, r.Salience,
		r.Response, citations, r.MentionCount, r.DomainMentionCount, r.WebSearch, r.LCP, r.Actionability,
		r.Intent, serp, r.AISearchVolume, trends, r.AIVolumeFetchedAt,
		r.AIVolumeLocation, r.Timestamp, r.Source, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert tracking result: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkResultFailed(ctx context.Context, id uuid.UUID, reason string) (string, error) {
	body, _ := json.Marshal(map[string]string{"error": reason})

	tag, err := s.pool.Exec(ctx,
		`UPDATE tracking_results SET status = $2, response = $3, timestamp = $4, updated_at = NOW()
		 WHERE id = $1 AND status <> $5`,
		id, models.ResultStatusFailed, body, time.Now().UnixMilli(), models.ResultStatusFulfilled)
	if err != nil {
		return "", fmt.Errorf("mark result failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return models.ResultStatusFailed, nil
	}

	// No row changed: either missing or already fulfilled.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM tracking_results WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read result status: %w", err)
	}
	return status, nil
}

func (s *PostgresStore) MarkShardResultsFailed(ctx context.Context, jobBatchID uuid.UUID, batchNumber int, reason string) error {
	body, _ := json.Marshal(map[string]string{"error": reason})

	_, err := s.pool.Exec(ctx,
		`UPDATE tracking_results SET status = $3, response = $4, timestamp = $5, updated_at = NOW()
		 WHERE job_batch_id = $1 AND batch_number = $2 AND status <> $6`,
		jobBatchID, batchNumber, models.ResultStatusFailed, body, time.Now().UnixMilli(),
		models.ResultStatusFulfilled)
	if err != nil {
		return fmt.Errorf("mark shard results failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListShardResults(ctx context.Context, jobBatchID uuid.UUID, batchNumber int) ([]*models.TrackingResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM tracking_results
		 WHERE job_batch_id = $1 AND batch_number = $2 ORDER BY created_at`, jobBatchID, batchNumber)
	if err != nil {
		return nil, fmt.Errorf("list shard results: %w", err)
	}
	defer rows.Close()

	var results []*models.TrackingResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Tags ---

func (s *PostgresStore) UpsertTag(ctx context.Context, projectID uuid.UUID, name string) (*models.Tag, error) {
	var t models.Tag
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, color, created_at FROM tags
		 WHERE project_id = $1 AND LOWER(name) = LOWER($2)`, projectID, name,
	).Scan(&t.ID, &t.ProjectID, &t.Name, &t.Color, &t.CreatedAt)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup tag: %w", err)
	}

	t = models.Tag{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Color:     models.DefaultTagColor,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tags (id, project_id, name, color, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.ProjectID, t.Name, t.Color, t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) TagPrompts(ctx context.Context, tagID uuid.UUID, promptIDs []uuid.UUID) error {
	for _, promptID := range promptIDs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO prompt_tags (prompt_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			promptID, tagID)
		if err != nil {
			return fmt.Errorf("link prompt tag: %w", err)
		}
	}
	return nil
}

// --- Projects and user settings ---

func (s *PostgresStore) ListScheduledProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, scheduler_frequency, last_nightly_run_at, created_at, updated_at
		 FROM projects WHERE scheduler_frequency IS NOT NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.SchedulerFrequency, &p.LastNightlyRunAt,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) StampNightlyRun(ctx context.Context, projectID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET last_nightly_run_at = $2, updated_at = NOW() WHERE id = $1`, projectID, at)
	if err != nil {
		return fmt.Errorf("stamp nightly run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetUserSettings(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	var u models.UserSettings
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, openai_key, openai_model, updated_at FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.OpenAIKey, &u.OpenAIModel, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	return &u, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
