// Package main is the entry point for the arcade server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"asteroid-arcade/internal/auth"
	"asteroid-arcade/internal/cache"
	"asteroid-arcade/internal/config"
	"asteroid-arcade/internal/handler"
	"asteroid-arcade/internal/lightning"
	"asteroid-arcade/internal/pkg/db"
	"asteroid-arcade/internal/pkg/lock"
	"asteroid-arcade/internal/repository"
	"asteroid-arcade/internal/service"
	"asteroid-arcade/internal/settlement"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// The leaderboard cache is optional; a broken Redis should not keep
	// the server from starting.
	var lbCache *cache.LeaderboardCache
	if cfg.Redis.Enabled {
		lbCache, err = cache.NewLeaderboardCache(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, serving leaderboard without cache")
			lbCache = nil
		} else {
			defer lbCache.Close()
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	scoreRepo := repository.NewScoreRepository(dbPool.Pool)
	paymentRepo := repository.NewPaymentRepository(dbPool.Pool)

	// Lightning provider client
	lnClient := lightning.NewClient(lightning.Config{
		APIURL:         cfg.Lightning.APIURL,
		APIKey:         cfg.Lightning.APIKey,
		OrganizationID: cfg.Lightning.OrganizationID,
		EnvironmentID:  cfg.Lightning.EnvironmentID,
		WalletID:       cfg.Lightning.WalletID,
	})

	// Initialize services
	userLock := lock.NewUserLock()
	gameService := service.NewGameService(sessionRepo, scoreRepo, lbCache)
	gate := service.NewSessionGate(paymentRepo, lnClient, gameService, userLock, cfg.Lightning.EntryFeeSats)
	prizeService := service.NewPrizeService(paymentRepo, lnClient, cfg.Prize.WinnerShareSats)

	// Daily settlement job
	worker := settlement.NewWorker(paymentRepo, cfg.Settlement.Interval, cfg.Prize.WinnerShareSats)
	worker.Start(ctx)

	// HTTP server
	h := handler.NewHandler(auth.HeaderVerifier{}, userRepo, gameService, gate, prizeService, dbPool)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server stopped gracefully")
}
