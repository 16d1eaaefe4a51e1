// Command backfill loads historical base bars from the feed, persists
// them and builds the derived timeframe aggregates, so a fresh
// deployment starts with enough history for the slow indicators.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/config"
	"pattern-sentinel/internal/aggregate"
	"pattern-sentinel/internal/database"
	"pattern-sentinel/internal/feed"
	"pattern-sentinel/internal/logging"
	"pattern-sentinel/internal/market"
)

func main() {
	days := flag.Int("days", 7, "days of history to backfill")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

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

	client := feed.NewHTTPClient(feed.HTTPConfig{
		BaseURL: cfg.Feed.BaseURL,
		APIKey:  cfg.Feed.APIKey,
		Timeout: cfg.Feed.Timeout,
	})

	since := time.Now().UTC().AddDate(0, 0, -*days)
	log.Info().
		Str("instrument", cfg.App.Instrument).
		Time("since", since).
		Msg("Backfilling bars")

	bars, err := client.FetchBars(ctx, cfg.App.Instrument, since)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch history")
	}

	valid := make([]market.Bar, 0, len(bars))
	dropped := 0
	for _, b := range bars {
		if verr := b.Validate(); verr != nil {
			log.Warn().Err(verr).Time("bar_ts", b.Timestamp).Msg("Dropping invalid bar")
			dropped++
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		log.Fatal().Msg("Feed returned no usable bars")
	}

	repo := database.NewBarRepository(db)
	if err := repo.SaveBars(ctx, valid); err != nil {
		log.Fatal().Err(err).Msg("Failed to save base bars")
	}

	// Persist only completed buckets; the live pipeline rebuilds the
	// open one on its next cycle.
	end := valid[len(valid)-1].Timestamp.Add(market.BaseTimeframe.Duration())
	saved := map[market.Timeframe]int{}
	for tf, resampled := range aggregate.ResampleAll(valid) {
		var completed []market.Bar
		for _, b := range resampled {
			if !b.Timestamp.Add(tf.Duration()).After(end) {
				completed = append(completed, b)
			}
		}
		if err := repo.SaveBars(ctx, completed); err != nil {
			log.Fatal().Err(err).Str("timeframe", string(tf)).Msg("Failed to save aggregates")
		}
		saved[tf] = len(completed)
	}

	log.Info().
		Int("base_bars", len(valid)).
		Int("dropped", dropped).
		Int("hourly", saved[market.Timeframe1h]).
		Int("four_hour", saved[market.Timeframe4h]).
		Int("daily", saved[market.Timeframe1d]).
		Msg("Backfill complete")
}
