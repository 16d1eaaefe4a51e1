// Package database provides PostgreSQL persistence for bars, indicator
// values and pattern matches, and a redis-backed notification send
// history. All writes are idempotent upserts keyed by the natural key,
// so replaying an aborted cycle never creates duplicates.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection pool
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("Database connection closed")
	}
}

// Ping checks connection health; the orchestrator uses it as the
// reconnect probe after a transient storage failure.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations creates the pipeline tables
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Info().Msg("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			instrument VARCHAR(32) NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (instrument, timeframe, ts)
		)`,

		`CREATE TABLE IF NOT EXISTS indicator_values (
			instrument VARCHAR(32) NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			indicator_type VARCHAR(16) NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			params TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (instrument, timeframe, indicator_type, ts)
		)`,

		`CREATE TABLE IF NOT EXISTS pattern_matches (
			id BIGSERIAL PRIMARY KEY,
			instrument VARCHAR(32) NOT NULL,
			pattern_id INT NOT NULL,
			pattern_name VARCHAR(64) NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			direction VARCHAR(4) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			evidence JSONB,
			notified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS pattern_matches_dedup_idx
			ON pattern_matches (instrument, pattern_id, timeframe, detected_at)`,

		`CREATE INDEX IF NOT EXISTS bars_query_idx
			ON bars (instrument, timeframe, ts DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
