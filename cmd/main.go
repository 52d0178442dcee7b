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

	"github.com/go-chi/chi/v5"

	"github.com/42-Transcendence-2025/consegna-finale/cache"
	"github.com/42-Transcendence-2025/consegna-finale/config"
	"github.com/42-Transcendence-2025/consegna-finale/db"
	"github.com/42-Transcendence-2025/consegna-finale/game"
	"github.com/42-Transcendence-2025/consegna-finale/handlers"
	"github.com/42-Transcendence-2025/consegna-finale/middleware"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
	api "github.com/42-Transcendence-2025/consegna-finale/routes"
	"github.com/42-Transcendence-2025/consegna-finale/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	redisClient, err := cache.NewClient(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis connection", slog.Any("error", err))
		}
	}()
	store := cache.New(redisClient)
	logger.Info("redis connection established")

	userRepo := repositories.NewPostgresUserRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	txRunner := db.NewRunner(dbConn)

	matchService := services.NewMatchService(txRunner, matchRepo, tournamentRepo, userRepo, store, logger)
	matchmakingService := services.NewMatchmakingService(userRepo, matchRepo, tournamentRepo, store, store, cfg.RendezvousTimeout, logger)
	rankedService := services.NewRankedService(userRepo, matchRepo, store, store, logger)
	tournamentService := services.NewTournamentService(txRunner, tournamentRepo, userRepo, matchRepo, logger)
	logger.Info("services initialized")

	registry := game.NewRegistry(matchService, logger, game.Config{})

	matcherCtx, stopMatcher := context.WithCancel(context.Background())
	defer stopMatcher()
	go func() {
		if err := rankedService.Run(matcherCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ranked matcher stopped", slog.Any("error", err))
		}
	}()
	logger.Info("ranked matcher started")

	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	matchmakingHandler := handlers.NewMatchmakingHandler(matchmakingService, rankedService)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, matchmakingService)
	gameHandler := handlers.NewGameHandler(matchService, registry, auth, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, auth, matchmakingHandler, tournamentHandler, gameHandler)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
		// Rendezvous requests block until an opponent arrives, so the write
		// timeout must outlive the rendezvous window.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RendezvousTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopMatcher()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
