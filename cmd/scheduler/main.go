// Package main is the entrypoint for the nightly scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/cache"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/config"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/llm"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/scheduler"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Queue.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	publisher := queue.NewSQSPublisher(sqs.NewFromConfig(awsCfg))

	health := providers.NewHealthController(
		providers.DefaultTargets(cfg.DataForSEO.BaseURL, cfg.BrightData.BaseURL), logger)
	go health.Run(ctx)

	schedCfg := scheduler.Config{
		CronSchedule: cfg.Scheduler.CronSchedule,
		TestingMode:  cfg.Scheduler.TestingMode,
		QueueURLs: map[string]string{
			providers.BrightData: cfg.Queue.BrightDataURL,
			providers.DataForSEO: cfg.Queue.DataForSEOURL,
		},
		DefaultModel: cfg.OpenAI.DefaultModel,
	}
	if cfg.Scheduler.TestingMode {
		schedCfg.TestUserID, err = uuid.Parse(cfg.Scheduler.TestUserID)
		if err != nil {
			return fmt.Errorf("parse TEST_USER_ID: %w", err)
		}
		schedCfg.TestProjectID, err = uuid.Parse(cfg.Scheduler.TestProjectID)
		if err != nil {
			return fmt.Errorf("parse TEST_PROJECT_ID: %w", err)
		}
	}

	s := scheduler.New(store.NewPostgresStore(pool), redisCache, publisher, health,
		func(apiKey, model string) models.LLMClient {
			return llm.NewOpenAIClient(apiKey, model)
		},
		schedCfg, logger)

	return s.Run(ctx)
}
