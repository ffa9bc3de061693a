// Package main is the entrypoint for the rank tracker API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/api/handler"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/batch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/cache"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/config"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/dispatch"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/llm"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/notify"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/dataforseo"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database ready")

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

	pgStore := store.NewPostgresStore(pool)

	health := providers.NewHealthController(
		providers.DefaultTargets(cfg.DataForSEO.BaseURL, cfg.BrightData.BaseURL), logger)
	go health.Run(ctx)

	dfsClient := dataforseo.New(dataforseo.Config{
		Login:    cfg.DataForSEO.Login,
		Password: cfg.DataForSEO.Password,
		BaseURL:  cfg.DataForSEO.BaseURL,
		Timeout:  cfg.DataForSEO.Timeout,
	}, logger)
	bdClient := brightdata.New(brightdata.Config{
		APIKey:    cfg.BrightData.APIKey,
		DatasetID: cfg.BrightData.DatasetID,
		BaseURL:   cfg.BrightData.BaseURL,
		Timeout:   cfg.BrightData.Timeout,
	}, logger)

	newLLM := func(apiKey, model string) models.LLMClient {
		return llm.NewOpenAIClient(apiKey, model)
	}

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

	callbacks := dispatch.NewCallbackProcessor(pgStore, batch.NewManager(pgStore, logger),
		mailer, dfsClient, newLLM, cfg.OpenAI.DefaultModel, logger)

	queueURLs := map[string]string{
		providers.BrightData: cfg.Queue.BrightDataURL,
		providers.DataForSEO: cfg.Queue.DataForSEOURL,
	}

	router := api.NewRouter(api.Dependencies{
		HealthHandler: handler.NewHealthHandler(pgStore, redisCache, health),
		EnqueueHandler: handler.NewEnqueueHandler(handler.EnqueueDeps{
			Store:        pgStore,
			Publisher:    publisher,
			Providers:    health,
			NewLLM:       newLLM,
			QueueURLs:    queueURLs,
			DefaultModel: cfg.OpenAI.DefaultModel,
			Logger:       logger,
		}),
		CallbackHandler: handler.NewDataForSEOCallbackHandler(callbacks, logger),
		SnapshotHandler: handler.NewSnapshotHandler(bdClient, logger),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
