package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub005/internal/adapter/repo"
	"github.com/Simplereally/bloomstudio-sub005/internal/batch"
	"github.com/Simplereally/bloomstudio-sub005/internal/http/handlers"
	"github.com/Simplereally/bloomstudio-sub005/internal/http/httpapi"
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
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	batches := repo.NewBatchRepository(runner)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	broker := progress.NewBroker()
	service := batch.NewService(batches, batches, broker, logger)
	app := handlers.NewApp(service, broker, fileStore, logger, cfg.JWTSecret)

	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
