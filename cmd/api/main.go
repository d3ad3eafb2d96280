package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storyflow/internal/balance"
	"storyflow/internal/http/handlers"
	"storyflow/internal/http/httpapi"
	"storyflow/internal/infra"
	"storyflow/internal/poller"
	"storyflow/internal/sora"
	"storyflow/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	ledger := balance.NewLedger(pool, logger)
	jobs := store.NewVideoJobs(runner)

	costs, err := balance.LoadCosts(cfg.TokenPricingPath)
	if err != nil {
		logger.Warn().Err(err).Msg("pricing override not loaded, using defaults")
	}

	videos, err := sora.NewClient(sora.Options{
		BaseURL: cfg.AIAPIBaseURL,
		APIKey:  cfg.AIAPIKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure video generation client")
	}

	registry := poller.NewRegistry(videos, jobs, ledger, poller.Config{
		Interval:    cfg.VideoPollInterval,
		MaxDuration: cfg.VideoMaxPollDuration,
	}, logger)

	// Pick up jobs that were still generating when the previous process
	// stopped.
	if err := registry.Resume(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to resume pending polls")
	}

	app := &handlers.App{
		SQL:    runner,
		Ledger: ledger,
		Jobs:   jobs,
		Videos: videos,
		Poller: registry,
		Costs:  costs,
		Log:    logger,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, cfg, logger))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	registry.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
