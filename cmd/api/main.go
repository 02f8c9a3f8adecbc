package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"waterfootprint/backend/internal/config"
	"waterfootprint/backend/internal/logging"
	"waterfootprint/backend/internal/server"
)

const serviceName = "water-footprint-api"

func main() {
	cfg := config.Load()
	logging.Init(serviceName, cfg.AppEnv, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	metrics := server.NewMetrics()

	history, closeHistory := openHistoryStore(ctx, cfg)
	app := server.New(cfg, server.Options{
		Model:   newGenerator(ctx, cfg, metrics),
		History: history,
		Metrics: metrics,
	})

	readHeaderTimeout := time.Duration(cfg.ReadHeaderTimeoutSec) * time.Second
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("water footprint api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	closeHistory(shutdownCtx)
}

// newGenerator returns nil when no API key is set so AI routes answer 500
// without any outbound call.
func newGenerator(ctx context.Context, cfg config.Config, metrics *server.Metrics) server.Generator {
	if !cfg.AIConfigured() {
		log.Warn().Msg("GOOGLE_API_KEY not found; AI endpoints are disabled")
		return nil
	}
	client, err := server.NewGeminiClient(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("gemini client init failed; AI endpoints are disabled")
		return nil
	}
	if cfg.AIListModelsOnStart {
		listCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		server.LogAvailableModels(listCtx, client, &log.Logger)
		cancel()
	}
	invoker := server.NewModelInvoker(client, cfg.GeminiModels, metrics.ObserveModelAttempt)
	log.Info().Strs("candidates", invoker.Candidates()).Msg("gemini model fallback order")
	return invoker
}
