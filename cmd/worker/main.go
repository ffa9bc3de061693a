// Package main is the entrypoint for the queue workers. One process runs
// both provider consumers; each drains its own SQS queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/batch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/cache"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/config"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/dispatch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/llm"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/notify"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

const consumerParallelism = 4

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("worker failed", "error", err)
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
	sqsClient := sqs.NewFromConfig(awsCfg)

	pgStore := store.NewPostgresStore(pool)
	batches := batch.NewManager(pgStore, logger)

	mailer := notify.NewShardMailer(
		notify.NewMailgunNotifier(notify.Config{
			APIKey: cfg.Mailgun.APIKey,
			Domain: cfg.Mailgun.Domain,
			Sender: cfg.Mailgun.Sender,
			Templates: map[notify.Kind]string{
				notify.KindSubmitted: cfg.Mailgun.TemplateSubmitted,
				notify.KindSucceeded: cfg.Mailgun.TemplateSucceeded,
				notify.KindFailed:    cfg.Mailgun.TemplateFailed,
			},
		}, logger),
		redisCache, cfg.App.URL, logger)

	newLLM := func(apiKey, model string) models.LLMClient {
		return llm.NewOpenAIClient(apiKey, model)
	}

	bdClient := brightdata.New(brightdata.Config{
		APIKey:    cfg.BrightData.APIKey,
		DatasetID: cfg.BrightData.DatasetID,
		BaseURL:   cfg.BrightData.BaseURL,
		Timeout:   cfg.BrightData.Timeout,
	}, logger)
	dfsClient := dataforseo.New(dataforseo.Config{
		Login:    cfg.DataForSEO.Login,
		Password: cfg.DataForSEO.Password,
		BaseURL:  cfg.DataForSEO.BaseURL,
		Timeout:  cfg.DataForSEO.Timeout,
	}, logger)

	bdWorker := dispatch.NewBrightDataWorker(pgStore, batches, mailer, bdClient, dfsClient,
		newLLM, cfg.OpenAI.DefaultModel, logger)
	dfsWorker := dispatch.NewDataForSEOWorker(pgStore, batches, mailer, dfsClient,
		cfg.DataForSEO.CallbackURL, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		logger.Info("brightdata consumer started", "queue", cfg.Queue.BrightDataURL)
		queue.NewConsumer(sqsClient, cfg.Queue.BrightDataURL, cfg.Queue.WaitTimeSeconds, consumerParallelism).
			Run(ctx, bdWorker.Handle)
	}()
	go func() {
		defer wg.Done()
		logger.Info("dataforseo consumer started", "queue", cfg.Queue.DataForSEOURL)
		queue.NewConsumer(sqsClient, cfg.Queue.DataForSEOURL, cfg.Queue.WaitTimeSeconds, consumerParallelism).
			Run(ctx, dfsWorker.Handle)
	}()

	wg.Wait()
	logger.Info("workers stopped")
	return nil
}
