package database

import (
	"context"
	"fmt"
	"time"

	"pattern-sentinel/internal/market"
)

// BarRepository provides access to persisted OHLCV bars
type BarRepository struct {
	db *DB
}

// NewBarRepository creates a bar repository
func NewBarRepository(db *DB) *BarRepository {
	return &BarRepository{db: db}
}

// SaveBar upserts a bar by its natural key. Bars are immutable, so a
// conflicting insert is treated as success and leaves the existing row
// untouched.
func (r *BarRepository) SaveBar(ctx context.Context, bar market.Bar) error {
	query := `
		INSERT INTO bars (instrument, timeframe, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument, timeframe, ts) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query,
		bar.Instrument, string(bar.Timeframe), bar.Timestamp.UTC(),
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
	)
	if err != nil {
		return fmt.Errorf("saving bar %s/%s/%s: %w", bar.Instrument, bar.Timeframe, bar.Timestamp, err)
	}
	return nil
}

// SaveBars upserts a batch of bars
func (r *BarRepository) SaveBars(ctx context.Context, bars []market.Bar) error {
	for _, b := range bars {
		if err := r.SaveBar(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// QueryBars returns bars in [start, end), oldest first, up to limit
func (r *BarRepository) QueryBars(ctx context.Context, instrument string, tf market.Timeframe, start, end time.Time, limit int) ([]market.Bar, error) {
	query := `
		SELECT instrument, timeframe, ts, open, high, low, close, volume
		FROM bars
		WHERE instrument = $1 AND timeframe = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts ASC
		LIMIT $5
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, string(tf), start.UTC(), end.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// LatestBars returns the most recent n bars, oldest first
func (r *BarRepository) LatestBars(ctx context.Context, instrument string, tf market.Timeframe, n int) ([]market.Bar, error) {
	query := `
		SELECT instrument, timeframe, ts, open, high, low, close, volume
		FROM (
			SELECT instrument, timeframe, ts, open, high, low, close, volume
			FROM bars
			WHERE instrument = $1 AND timeframe = $2
			ORDER BY ts DESC
			LIMIT $3
		) recent
		ORDER BY ts ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, string(tf), n)
	if err != nil {
		return nil, fmt.Errorf("querying latest bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

type barRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBars(rows barRows) ([]market.Bar, error) {
	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		var tf string
		if err := rows.Scan(&b.Instrument, &tf, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		b.Timeframe = market.Timeframe(tf)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bars: %w", err)
	}
	return bars, nil
}
