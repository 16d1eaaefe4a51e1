package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"pattern-sentinel/internal/market"
)

type fakeFinder struct {
	matches []market.PatternMatch
	err     error
	lastFrom, lastTo time.Time
}

func (f *fakeFinder) FindRecentDuplicate(_ context.Context, instrument string, patternID int, tf market.Timeframe, from, to time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.lastFrom, f.lastTo = from, to
	for _, m := range f.matches {
		if m.Instrument == instrument && m.PatternID == patternID && m.Timeframe == tf &&
			!m.DetectedAt.Before(from) && !m.DetectedAt.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func match(patternID int, tf market.Timeframe, at time.Time) market.PatternMatch {
	return market.PatternMatch{
		Instrument: "EURUSD",
		PatternID:  patternID,
		Timeframe:  tf,
		DetectedAt: at,
	}
}

// TestGuardSuppressesWithinWindow verifies same-key matches inside the
// lookback are flagged
func TestGuardSuppressesWithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	finder := &fakeFinder{matches: []market.PatternMatch{match(4, market.Timeframe1h, now.Add(-30*time.Minute))}}
	guard := NewGuard(finder, time.Hour)

	dup, err := guard.IsDuplicate(context.Background(), match(4, market.Timeframe1h, now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Error("match 30m after an identical one should be a duplicate")
	}
}

// TestGuardAllowsOutsideWindow verifies matches beyond the lookback pass
func TestGuardAllowsOutsideWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	finder := &fakeFinder{matches: []market.PatternMatch{match(4, market.Timeframe1h, now.Add(-2*time.Hour))}}
	guard := NewGuard(finder, time.Hour)

	dup, err := guard.IsDuplicate(context.Background(), match(4, market.Timeframe1h, now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup {
		t.Error("match 2h after the previous one should not be suppressed")
	}
}

// TestGuardKeyIncludesPatternAndTimeframe verifies only the same key suppresses
func TestGuardKeyIncludesPatternAndTimeframe(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	finder := &fakeFinder{matches: []market.PatternMatch{match(4, market.Timeframe1h, now)}}
	guard := NewGuard(finder, time.Hour)

	cases := []market.PatternMatch{
		match(1, market.Timeframe1h, now), // different pattern
		match(4, market.Timeframe4h, now), // different timeframe
	}
	for _, c := range cases {
		dup, err := guard.IsDuplicate(context.Background(), c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dup {
			t.Errorf("pattern %d on %s should not be suppressed by a different key", c.PatternID, c.Timeframe)
		}
	}
}

// TestGuardWindowIsTwoSided verifies the query spans ±lookback
func TestGuardWindowIsTwoSided(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	finder := &fakeFinder{}
	guard := NewGuard(finder, time.Hour)

	if _, err := guard.IsDuplicate(context.Background(), match(4, market.Timeframe1h, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !finder.lastFrom.Equal(now.Add(-time.Hour)) || !finder.lastTo.Equal(now.Add(time.Hour)) {
		t.Errorf("query window = [%v, %v], want ±1h around detection time", finder.lastFrom, finder.lastTo)
	}
}

// TestGuardPropagatesStoreErrors verifies store failures surface to the caller
func TestGuardPropagatesStoreErrors(t *testing.T) {
	finder := &fakeFinder{err: errors.New("connection reset")}
	guard := NewGuard(finder, time.Hour)

	if _, err := guard.IsDuplicate(context.Background(), match(4, market.Timeframe1h, time.Now())); err == nil {
		t.Error("expected store error to propagate")
	}
}

// TestGuardDefaultLookback verifies a non-positive lookback falls back
func TestGuardDefaultLookback(t *testing.T) {
	guard := NewGuard(&fakeFinder{}, 0)
	if guard.Lookback() != DefaultLookback {
		t.Errorf("lookback = %v, want default %v", guard.Lookback(), DefaultLookback)
	}
}
