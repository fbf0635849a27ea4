package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kcu-coach-engine/config"
	"kcu-coach-engine/internal/api"
	"kcu-coach-engine/internal/auth"
	"kcu-coach-engine/internal/coach"
	"kcu-coach-engine/internal/levels"
	"kcu-coach-engine/internal/logging"
	"kcu-coach-engine/internal/marketdata"
	"kcu-coach-engine/internal/secrets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("Starting coach engine")

	// Vault secrets override config/env values when present.
	vaultClient, err := secrets.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vault client")
	}
	if cfg.VaultConfig.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		loaded, err := vaultClient.Load(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load secrets from vault")
		}
		if loaded.MarketAPIKey != "" {
			cfg.MarketDataConfig.APIKey = loaded.MarketAPIKey
		}
		if loaded.JWTSecret != "" {
			cfg.AuthConfig.JWTSecret = loaded.JWTSecret
		}
		logger.Info().Msg("Secrets loaded from vault")
	}

	cache := levels.NewCache(cfg.RedisConfig, cfg.LevelsConfig.CacheTTL, logger)
	defer cache.Close()
	if cfg.RedisConfig.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, levels cache running from memory")
		}
		cancel()
	}

	store := coach.NewStore()
	hub := api.NewHub(logger)
	engine := coach.NewEngine(store, hub, cfg.CoachConfig.EventCooldown, logger)

	subs := marketdata.NewSubscriptions(logger)
	feed := marketdata.NewFeed(cfg.MarketDataConfig, subs, engine, logger)
	subs.BindFeed(feed)

	// A user with no open stream connections gets fully torn down:
	// coaching state, throttle history and feed subscriptions.
	hub.OnUserGone(func(userID string) {
		engine.RemoveUser(userID)
		subs.UnwatchAll(userID)
	})

	feed.Start()
	defer feed.Stop()

	var refresher *levels.Refresher
	if cfg.LevelsConfig.BaseURL != "" {
		source := levels.NewHTTPSource(cfg.LevelsConfig.BaseURL)
		refresher = levels.NewRefresher(source, cache, engine, cfg.LevelsConfig.RefreshInterval, logger)
		refresher.Start()
		defer refresher.Stop()
	} else {
		logger.Warn().Msg("No levels source configured, coaching on client-supplied levels only")
	}

	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		if cfg.AuthConfig.JWTSecret == "" {
			logger.Fatal().Msg("Auth enabled but no JWT secret configured")
		}
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret)
	} else {
		logger.Warn().Msg("Auth disabled, user identity taken from query parameters")
	}

	server := api.NewServer(api.ServerConfig{
		Port:              cfg.ServerConfig.Port,
		Host:              cfg.ServerConfig.Host,
		AllowedOrigins:    cfg.ServerConfig.AllowedOrigins,
		HeartbeatInterval: cfg.CoachConfig.HeartbeatInterval,
		ProductionMode:    cfg.LoggingConfig.Level != "debug",
	}, engine, hub, subs, cache, jwtManager, logger)
	server.AttachFeed(feed)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Coach engine stopped")
}
