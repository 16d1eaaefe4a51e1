package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/config"
	"pattern-sentinel/internal/api"
	"pattern-sentinel/internal/auth"
	"pattern-sentinel/internal/database"
	"pattern-sentinel/internal/dedup"
	"pattern-sentinel/internal/feed"
	"pattern-sentinel/internal/indicator"
	"pattern-sentinel/internal/logging"
	"pattern-sentinel/internal/notification"
	"pattern-sentinel/internal/patterns"
	"pattern-sentinel/internal/pipeline"
)

func main() {
	// .env is optional; the environment itself always wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	barRepo := database.NewBarRepository(db)
	indicatorRepo := database.NewIndicatorRepository(db)
	patternRepo := database.NewPatternRepository(db)

	var history notification.SendHistory
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer redisClient.Close()
		history = database.NewRedisSendHistory(redisClient)
		log.Info().Str("address", cfg.Redis.Address).Msg("Connected to redis")
	}

	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		MinConfidence: cfg.Notification.MinConfidence,
		MaxPerCycle:   cfg.Notification.MaxPerCycle,
		MaxPerWindow:  cfg.Notification.MaxPerWindow,
		RateWindow:    cfg.Notification.RateWindow,
	}, patternRepo, history)
	dispatcher.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
		Enabled:  cfg.Notification.Telegram.Enabled,
		BotToken: cfg.Notification.Telegram.BotToken,
		ChatID:   cfg.Notification.Telegram.ChatID,
	}))
	dispatcher.AddNotifier(notification.NewWebhookNotifier(notification.WebhookConfig{
		Enabled: cfg.Notification.Webhook.Enabled,
		URL:     cfg.Notification.Webhook.URL,
	}))

	feedClient := feed.NewHTTPClient(feed.HTTPConfig{
		BaseURL: cfg.Feed.BaseURL,
		APIKey:  cfg.Feed.APIKey,
		Timeout: cfg.Feed.Timeout,
	})

	orch := pipeline.NewOrchestrator(pipeline.Config{
		Instrument:       cfg.App.Instrument,
		CycleInterval:    cfg.Pipeline.CycleInterval,
		WindowSize:       cfg.Pipeline.WindowSize,
		FullRefreshEvery: cfg.Pipeline.FullRefreshEvery,
		FailureThreshold: cfg.Pipeline.FailureThreshold,
		Retry: pipeline.RetryPolicy{
			MaxAttempts:     cfg.Pipeline.RetryMaxAttempts,
			InitialInterval: cfg.Pipeline.RetryInitialWait,
			MaxInterval:     cfg.Pipeline.RetryMaxWait,
		},
	}, pipeline.Deps{
		Feed:       feedClient,
		Bars:       barRepo,
		Indicators: indicatorRepo,
		Matches:    patternRepo,
		Guard:      dedup.NewGuard(patternRepo, cfg.Dedup.Lookback),
		Dispatcher: dispatcher,
		Indicator: indicator.NewEngine(indicator.Config{
			RSIPeriod:        cfg.Indicators.RSIPeriod,
			MACDFastPeriod:   cfg.Indicators.MACDFastPeriod,
			MACDSlowPeriod:   cfg.Indicators.MACDSlowPeriod,
			MACDSignalPeriod: cfg.Indicators.MACDSignalPeriod,
			BBPeriod:         cfg.Indicators.BBPeriod,
			BBStdDev:         cfg.Indicators.BBStdDev,
		}),
		Patterns: patterns.NewEngine(nil),
		Pinger:   db,
	})

	if cfg.Server.Enabled {
		var jwtManager *auth.JWTManager
		if cfg.Auth.Enabled {
			jwtManager = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
		}
		server := api.NewServer(api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			ProductionMode:  cfg.Server.ProductionMode,
			ReadTimeout:     time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
			ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		}, cfg.App.Instrument, orch, patternRepo, indicatorRepo, barRepo, db, jwtManager)

		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Monitor API failed")
				stop()
			}
		}()
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("API shutdown failed")
			}
		}()
	}

	if cfg.Feed.StreamEnabled {
		stream := feed.NewStreamClient(feed.StreamConfig{
			URL:        cfg.Feed.StreamURL,
			Instrument: cfg.App.Instrument,
		})
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Stream feed exited")
			}
		}()
		go func() {
			if err := orch.IngestStream(ctx, stream.Bars()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Stream ingestion exited")
			}
		}()
	}

	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Pipeline exited")
	}
	log.Info().Msg("Shutdown complete")
}
