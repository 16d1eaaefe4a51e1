package database

import (
	"context"
	"fmt"
	"time"

	"pattern-sentinel/internal/market"
)

// IndicatorRepository provides access to persisted indicator values
type IndicatorRepository struct {
	db *DB
}

// NewIndicatorRepository creates an indicator repository
func NewIndicatorRepository(db *DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

// SaveIndicatorValue upserts a value by its natural key. Recomputing an
// indicator for the same timestamp overwrites the prior value instead
// of duplicating it.
func (r *IndicatorRepository) SaveIndicatorValue(ctx context.Context, v market.IndicatorValue) error {
	query := `
		INSERT INTO indicator_values (instrument, timeframe, indicator_type, ts, value, params)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instrument, timeframe, indicator_type, ts)
		DO UPDATE SET value = EXCLUDED.value, params = EXCLUDED.params
	`
	_, err := r.db.Pool.Exec(ctx, query,
		v.Instrument, string(v.Timeframe), string(v.Type), v.Timestamp.UTC(), v.Value, v.Params,
	)
	if err != nil {
		return fmt.Errorf("saving indicator %s/%s/%s: %w", v.Instrument, v.Timeframe, v.Type, err)
	}
	return nil
}

// SaveIndicatorValues upserts a batch of values
func (r *IndicatorRepository) SaveIndicatorValues(ctx context.Context, values []market.IndicatorValue) error {
	for _, v := range values {
		if err := r.SaveIndicatorValue(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// FindLatest returns the newest value per indicator type on a timeframe
func (r *IndicatorRepository) FindLatest(ctx context.Context, instrument string, tf market.Timeframe) ([]market.IndicatorValue, error) {
	query := `
		SELECT DISTINCT ON (indicator_type)
			instrument, timeframe, indicator_type, ts, value, params
		FROM indicator_values
		WHERE instrument = $1 AND timeframe = $2
		ORDER BY indicator_type, ts DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, string(tf))
	if err != nil {
		return nil, fmt.Errorf("querying latest indicators: %w", err)
	}
	defer rows.Close()
	return scanIndicatorValues(rows)
}

// FindByRange returns values of one type in [start, end), oldest first
func (r *IndicatorRepository) FindByRange(ctx context.Context, instrument string, tf market.Timeframe, typ market.IndicatorType, start, end time.Time) ([]market.IndicatorValue, error) {
	query := `
		SELECT instrument, timeframe, indicator_type, ts, value, params
		FROM indicator_values
		WHERE instrument = $1 AND timeframe = $2 AND indicator_type = $3 AND ts >= $4 AND ts < $5
		ORDER BY ts ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, string(tf), string(typ), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying indicator range: %w", err)
	}
	defer rows.Close()
	return scanIndicatorValues(rows)
}

func scanIndicatorValues(rows barRows) ([]market.IndicatorValue, error) {
	var values []market.IndicatorValue
	for rows.Next() {
		var v market.IndicatorValue
		var tf, typ string
		if err := rows.Scan(&v.Instrument, &tf, &typ, &v.Timestamp, &v.Value, &v.Params); err != nil {
			return nil, fmt.Errorf("scanning indicator value: %w", err)
		}
		v.Timeframe = market.Timeframe(tf)
		v.Type = market.IndicatorType(typ)
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating indicator values: %w", err)
	}
	return values, nil
}
