// Package dedup suppresses re-emission of a pattern match that remains
// true across consecutive pipeline cycles.
package dedup

import (
	"context"
	"fmt"
	"time"

	"pattern-sentinel/internal/market"
)

// MatchFinder is the persistence contract the guard queries. The store
// reports whether any match with the same (instrument, pattern,
// timeframe) key exists inside the window.
type MatchFinder interface {
	FindRecentDuplicate(ctx context.Context, instrument string, patternID int, tf market.Timeframe, from, to time.Time) (bool, error)
}

// Guard filters out matches already seen within the lookback window
type Guard struct {
	finder   MatchFinder
	lookback time.Duration
}

// DefaultLookback is the standard duplicate-suppression window
const DefaultLookback = time.Hour

// NewGuard creates a deduplication guard
func NewGuard(finder MatchFinder, lookback time.Duration) *Guard {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Guard{finder: finder, lookback: lookback}
}

// Lookback returns the configured suppression window
func (g *Guard) Lookback() time.Duration {
	return g.lookback
}

// IsDuplicate reports whether a match with the same (instrument,
// pattern, timeframe) key exists within ±lookback of the detection
// time. Duplicates are discarded before persistence and notification.
func (g *Guard) IsDuplicate(ctx context.Context, m market.PatternMatch) (bool, error) {
	from := m.DetectedAt.Add(-g.lookback)
	to := m.DetectedAt.Add(g.lookback)

	dup, err := g.finder.FindRecentDuplicate(ctx, m.Instrument, m.PatternID, m.Timeframe, from, to)
	if err != nil {
		return false, fmt.Errorf("querying recent duplicates: %w", err)
	}
	return dup, nil
}
