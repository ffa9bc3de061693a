// Package scheduler re-runs every opted-in project's enabled prompts on a
// nightly cron. Nightly shards carry no job batch and no email; their
// results are inserted as fresh rows by the workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/cache"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// lockTTL bounds how long a crashed run can hold the nightly lock.
const lockTTL = 2 * time.Hour

// ProviderSelector yields the currently active scraping provider.
type ProviderSelector interface {
	Active(ctx context.Context) (string, error)
}

// LLMFactory builds a validation client from a user's stored credentials.
type LLMFactory func(apiKey, model string) models.LLMClient

// Config carries the scheduler's tunables.
type Config struct {
	CronSchedule  string
	TestingMode   bool
	TestUserID    uuid.UUID
	TestProjectID uuid.UUID
	QueueURLs     map[string]string
	DefaultModel  string
}

// Scheduler drives the nightly re-run.
type Scheduler struct {
	store     store.Store
	cache     cache.Cache
	publisher queue.Publisher
	providers ProviderSelector
	newLLM    LLMFactory
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func New(st store.Store, c cache.Cache, pub queue.Publisher, providers ProviderSelector,
	newLLM LLMFactory, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     st,
		cache:     c,
		publisher: pub,
		providers: providers,
		newLLM:    newLLM,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run installs the cron entry and blocks until ctx is cancelled. An invalid
// cron expression is a startup error, not something to limp along with.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.CronSchedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("nightly run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.CronSchedule, err)
	}

	s.logger.Info("nightly scheduler started", "schedule", s.cfg.CronSchedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce performs one nightly sweep under the shared advisory lock.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	acquired, err := s.cache.AcquireLock(ctx, cache.NightlyLockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire nightly lock: %w", err)
	}
	if !acquired {
		s.logger.Info("nightly lock held elsewhere, skipping run")
		return nil
	}
	defer func() {
		if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), cache.NightlyLockKey); err != nil {
			s.logger.Error("release nightly lock", "error", err)
		}
	}()

	service, err := s.providers.Active(ctx)
	if err != nil {
		return fmt.Errorf("no active provider for nightly run: %w", err)
	}

	start := s.now()
	projects, err := s.store.ListScheduledProjects(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled projects: %w", err)
	}

	byUser := map[uuid.UUID][]*models.Project{}
	for _, p := range projects {
		if !s.includeProject(p) || !due(p, start) {
			continue
		}
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}
	s.logger.Info("nightly sweep", "service", service, "users", len(byUser))

	for userID, userProjects := range byUser {
		key, model, ok := s.credentials(ctx, userID)
		if !ok {
			continue
		}
		for _, p := range userProjects {
			if err := s.runProject(ctx, service, p, key, model, start); err != nil {
				s.logger.Error("nightly project failed", "project_id", p.ID, "error", err)
			}
		}
	}
	return nil
}

// includeProject applies the testing-mode filter.
func (s *Scheduler) includeProject(p *models.Project) bool {
	if !s.cfg.TestingMode {
		return true
	}
	return p.UserID == s.cfg.TestUserID && p.ID == s.cfg.TestProjectID
}

// due reports whether the project's cadence has elapsed since its last run.
// Unknown cadences never run.
func due(p *models.Project, now time.Time) bool {
	if p.SchedulerFrequency == nil {
		return false
	}
	var interval time.Duration
	switch *p.SchedulerFrequency {
	case models.FrequencyDaily:
		interval = 24 * time.Hour
	case models.FrequencyWeekly:
		interval = 7 * 24 * time.Hour
	case models.FrequencyMonthly:
		interval = 30 * 24 * time.Hour
	default:
		return false
	}
	if p.LastNightlyRunAt == nil {
		return true
	}
	return now.Sub(*p.LastNightlyRunAt) >= interval
}

// credentials loads and probes the user's stored OpenAI key. Users without
// settings are skipped silently; users whose key fails the probe are skipped
// with a warning.
func (s *Scheduler) credentials(ctx context.Context, userID uuid.UUID) (string, string, bool) {
	settings, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("load user settings", "user_id", userID, "error", err)
		}
		return "", "", false
	}
	if settings.OpenAIKey == "" {
		return "", "", false
	}
	model := settings.OpenAIModel
	if model == "" {
		model = s.cfg.DefaultModel
	}
	if err := s.newLLM(settings.OpenAIKey, model).ValidateKey(ctx); err != nil {
		s.logger.Warn("nightly key validation failed, skipping user", "user_id", userID, "error", err)
		return "", "", false
	}
	return settings.OpenAIKey, model, true
}

func (s *Scheduler) runProject(ctx context.Context, service string, p *models.Project,
	key, model string, start time.Time) error {
	prompts, err := s.store.ListEnabledPrompts(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list enabled prompts: %w", err)
	}

	if len(prompts) > 0 {
		shardPrompts := make([]queue.ShardPrompt, len(prompts))
		for i, prompt := range prompts {
			shardPrompts[i] = queue.ShardPrompt{
				PromptID:       prompt.ID,
				Text:           prompt.Text,
				Country:        prompt.Country,
				BrandMentions:  prompt.BrandMentions,
				DomainMentions: prompt.DomainMentions,
			}
		}

		shards := queue.SplitPrompts(shardPrompts)
		queueURL := s.cfg.QueueURLs[service]
		if queueURL == "" {
			return fmt.Errorf("no queue configured for provider %q", service)
		}
		// A shard that fails to publish is logged and dropped; the run is
		// still stamped so the project does not retry every sweep.
		for n, shard := range shards {
			msg := queue.ShardMessage{
				Service:      service,
				UserID:       p.UserID,
				ProjectID:    p.ID,
				BatchNumber:  n,
				TotalBatches: len(shards),
				OpenAIKey:    key,
				OpenAIModel:  model,
				Nightly:      true,
				Prompts:      shard,
			}
			if err := s.publisher.Publish(ctx, queueURL, msg); err != nil {
				s.logger.Error("publish nightly shard",
					"project_id", p.ID, "shard", n, "error", err)
			}
		}
	}

	if err := s.store.StampNightlyRun(ctx, p.ID, start); err != nil {
		return fmt.Errorf("stamp nightly run: %w", err)
	}
	return nil
}
