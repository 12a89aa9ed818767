package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-insight-bot/config"
	"market-insight-bot/internal/analysis"
	"market-insight-bot/internal/api"
	"market-insight-bot/internal/cache"
	"market-insight-bot/internal/database"
	"market-insight-bot/internal/feedback"
	"market-insight-bot/internal/logging"
	"market-insight-bot/internal/market"
	"market-insight-bot/internal/prediction"
	"market-insight-bot/internal/vault"

	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx := context.Background()

	// Resolve secrets from Vault before anything connects
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	secrets, err := vaultClient.LoadSecrets(ctx)
	if err != nil {
		log.Fatalf("Failed to load secrets: %v", err)
	}
	vault.ApplyToConfig(cfg, secrets)
	if cfg.VaultConfig.Enabled {
		logger.Info("Secrets loaded from vault")
	}

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repository
	repo := database.NewRepository(db)

	// Initialize snapshot cache. Analysis works without it, just slower.
	var cacheSvc *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheSvc, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Cache unavailable, continuing without it", "error", err)
			cacheSvc = nil
		} else {
			defer cacheSvc.Close()
			logger.Info("Snapshot cache initialized", "address", cfg.RedisConfig.Address)
		}
	}

	// Initialize market data client
	var client market.DataClient
	if cfg.MarketDataConfig.MockMode {
		client = market.NewMockClient()
		logger.Info("Market data running in mock mode")
	} else {
		client = market.NewClientWithRetry(
			cfg.MarketDataConfig.BaseURL,
			cfg.MarketDataConfig.MaxRetries,
			time.Duration(cfg.MarketDataConfig.RetryBaseMS)*time.Millisecond,
		).WithAPIKey(cfg.MarketDataConfig.APIKey)
		logger.Info("Market data client initialized", "base_url", cfg.MarketDataConfig.BaseURL)
	}

	// Stream live prices for symbols with open predictions
	var priceStream *market.PriceStream
	if !cfg.MarketDataConfig.MockMode && cfg.MarketDataConfig.StreamURL != "" {
		priceStream = market.NewPriceStream(cfg.MarketDataConfig.StreamURL, logger)
		if active, err := repo.GetActivePredictions(ctx); err == nil {
			for _, p := range active {
				priceStream.Subscribe(p.Symbol)
			}
		}
		priceStream.Start()
	}

	// Initialize market analyzer
	analyzer := analysis.New(client, cacheSvc, cfg)
	logger.Info("Market analyzer initialized")

	// Initialize feedback synthesizer
	synthesizer := feedback.NewSynthesizer(repo, feedback.Config{
		ContextSize: cfg.FeedbackConfig.ContextSize,
		CharBudget:  cfg.FeedbackConfig.CharBudget,
		MaxInsights: cfg.FeedbackConfig.MaxInsights,
	})

	// Start the prediction evaluation loop. The evaluator prefers streamed
	// prices and falls back to REST when no stream is running.
	var priceSource prediction.PriceSource
	if priceStream != nil {
		priceSource = priceStream
	}
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	scheduler := prediction.NewScheduler(repo, client, priceSource, prediction.SchedulerConfig{
		Interval:        cfg.EvaluatorConfig.Interval,
		EntryLookback:   cfg.EvaluatorConfig.EntryLookback,
		MaxFetchRetries: cfg.EvaluatorConfig.MaxFetchRetries,
		FetchLimit:      cfg.MarketDataConfig.KlineLimit,
	}, zlog)
	scheduler.Start(ctx)

	// Initialize web server
	server := api.NewServer(cfg, repo, analyzer, synthesizer, cacheSvc)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()

	log.Println("Starting Market Insight Bot...")
	log.Printf("API available at http://%s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down web server: %v", err)
	}

	scheduler.Stop()
	if priceStream != nil {
		priceStream.Stop()
	}

	log.Println("Shutdown complete")
}
