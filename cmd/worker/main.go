package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub005/internal/adapter/repo"
	"github.com/Simplereally/bloomstudio-sub005/internal/batch"
	"github.com/Simplereally/bloomstudio-sub005/internal/generation"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/progress"
	"github.com/Simplereally/bloomstudio-sub005/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	batches := repo.NewBatchRepository(runner)

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	if cfg.GenerationAPIKey == "" {
		logger.Warn().Msg("worker: generation api key missing, upstream calls will be rejected")
	}
	gateway := generation.NewClient(generation.ClientOptions{
		BaseURL: cfg.GenerationBaseURL,
		APIKey:  cfg.GenerationAPIKey,
		Model:   cfg.GenerationModel,
		Timeout: cfg.GenerationTimeout,
	})
	executor := generation.NewExecutor(gateway, fileStore, logger)

	driver := batch.NewDriver(batches, executor, progress.NewBroker(), logger, batch.DriverConfig{
		Lease:        cfg.WorkerLease,
		PollInterval: cfg.WorkerPollInterval,
		MaxAttempts:  cfg.RetryMaxAttempts,
		Backoff: batch.BackoffConfig{
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
			Jitter:    batch.DefaultBackoff().Jitter,
		},
	})

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
