package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pattern-sentinel/internal/market"
)

// PatternRepository provides access to persisted pattern matches
type PatternRepository struct {
	db *DB
}

// NewPatternRepository creates a pattern match repository
func NewPatternRepository(db *DB) *PatternRepository {
	return &PatternRepository{db: db}
}

// SavePatternMatch inserts a match and fills in its assigned ID
func (r *PatternRepository) SavePatternMatch(ctx context.Context, m *market.PatternMatch) error {
	evidence, err := json.Marshal(m.Evidence)
	if err != nil {
		return fmt.Errorf("marshaling evidence: %w", err)
	}

	query := `
		INSERT INTO pattern_matches
			(instrument, pattern_id, pattern_name, timeframe, detected_at,
			 confidence, direction, entry_price, stop_loss, take_profit, evidence, notified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err = r.db.Pool.QueryRow(ctx, query,
		m.Instrument, m.PatternID, m.PatternName, string(m.Timeframe), m.DetectedAt.UTC(),
		m.Confidence, string(m.Direction), m.EntryPrice, m.StopLoss, m.TakeProfit,
		evidence, m.Notified,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("saving pattern match %s/%s: %w", m.PatternName, m.Timeframe, err)
	}
	return nil
}

// FindRecentDuplicate reports whether a match with the same
// (instrument, pattern, timeframe) key was detected within [from, to]
func (r *PatternRepository) FindRecentDuplicate(ctx context.Context, instrument string, patternID int, tf market.Timeframe, from, to time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pattern_matches
			WHERE instrument = $1 AND pattern_id = $2 AND timeframe = $3
			  AND detected_at >= $4 AND detected_at <= $5
		)
	`
	var exists bool
	err := r.db.Pool.QueryRow(ctx, query,
		instrument, patternID, string(tf), from.UTC(), to.UTC(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying duplicate matches: %w", err)
	}
	return exists, nil
}

// MarkNotified flips the notified flag after a successful dispatch
func (r *PatternRepository) MarkNotified(ctx context.Context, matchID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE pattern_matches SET notified = TRUE WHERE id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("marking match %d notified: %w", matchID, err)
	}
	return nil
}

// RecentMatches returns the newest matches, newest first, up to limit
func (r *PatternRepository) RecentMatches(ctx context.Context, instrument string, limit int) ([]market.PatternMatch, error) {
	query := `
		SELECT id, instrument, pattern_id, pattern_name, timeframe, detected_at,
		       confidence, direction, entry_price, stop_loss, take_profit, evidence, notified
		FROM pattern_matches
		WHERE instrument = $1
		ORDER BY detected_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent matches: %w", err)
	}
	defer rows.Close()

	var matches []market.PatternMatch
	for rows.Next() {
		var m market.PatternMatch
		var tf, direction string
		var evidence []byte
		if err := rows.Scan(&m.ID, &m.Instrument, &m.PatternID, &m.PatternName, &tf, &m.DetectedAt,
			&m.Confidence, &direction, &m.EntryPrice, &m.StopLoss, &m.TakeProfit, &evidence, &m.Notified); err != nil {
			return nil, fmt.Errorf("scanning pattern match: %w", err)
		}
		m.Timeframe = market.Timeframe(tf)
		m.Direction = market.Direction(direction)
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &m.Evidence); err != nil {
				return nil, fmt.Errorf("unmarshaling evidence for match %d: %w", m.ID, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pattern matches: %w", err)
	}
	return matches, nil
}
