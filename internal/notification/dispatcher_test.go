package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"pattern-sentinel/internal/market"
)

type fakeNotifier struct {
	name    string
	enabled bool
	fail    bool
	sent    []market.PatternMatch
}

func (f *fakeNotifier) Send(_ context.Context, m *market.PatternMatch) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, *m)
	return nil
}

func (f *fakeNotifier) Name() string    { return f.name }
func (f *fakeNotifier) IsEnabled() bool { return f.enabled }

type fakeMarker struct {
	marked []int64
}

func (f *fakeMarker) MarkNotified(_ context.Context, id int64) error {
	f.marked = append(f.marked, id)
	return nil
}

type fakeHistory struct {
	records []time.Time
}

func (f *fakeHistory) RecordSend(_ context.Context, _ market.PatternMatch, at time.Time) error {
	f.records = append(f.records, at)
	return nil
}

func (f *fakeHistory) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.After(since) {
			n++
		}
	}
	return n, nil
}

func matchWithConfidence(id int64, confidence float64) market.PatternMatch {
	return market.PatternMatch{
		ID:          id,
		Instrument:  "EURUSD",
		PatternID:   4,
		PatternName: "band_breakout",
		Timeframe:   market.Timeframe1h,
		DetectedAt:  time.Now(),
		Confidence:  confidence,
		Direction:   market.DirectionBuy,
		EntryPrice:  100,
	}
}

// TestDispatchFiltersByConfidence verifies matches below the threshold
// are never sent
func TestDispatchFiltersByConfidence(t *testing.T) {
	notifier := &fakeNotifier{name: "fake", enabled: true}
	d := NewDispatcher(DispatcherConfig{MinConfidence: 60, MaxPerCycle: 10}, &fakeMarker{}, &fakeHistory{})
	d.AddNotifier(notifier)

	sent, err := d.Dispatch(context.Background(), []market.PatternMatch{
		matchWithConfidence(1, 55),
		matchWithConfidence(2, 75),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 || len(notifier.sent) != 1 || notifier.sent[0].ID != 2 {
		t.Errorf("expected only match 2 sent, got sent=%d notified=%v", sent, notifier.sent)
	}
}

// TestDispatchCapTakesHighestConfidenceFirst verifies ordering under the cap
func TestDispatchCapTakesHighestConfidenceFirst(t *testing.T) {
	notifier := &fakeNotifier{name: "fake", enabled: true}
	d := NewDispatcher(DispatcherConfig{MinConfidence: 50, MaxPerCycle: 2}, &fakeMarker{}, &fakeHistory{})
	d.AddNotifier(notifier)

	sent, err := d.Dispatch(context.Background(), []market.PatternMatch{
		matchWithConfidence(1, 65),
		matchWithConfidence(2, 95),
		matchWithConfidence(3, 80),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if notifier.sent[0].ID != 2 || notifier.sent[1].ID != 3 {
		t.Errorf("expected matches 2 then 3, got %d then %d", notifier.sent[0].ID, notifier.sent[1].ID)
	}
}

// TestDispatchMarksNotifiedOnlyOnSuccess verifies failed sends leave the
// match unnotified
func TestDispatchMarksNotifiedOnlyOnSuccess(t *testing.T) {
	notifier := &fakeNotifier{name: "fake", enabled: true, fail: true}
	marker := &fakeMarker{}
	d := NewDispatcher(DispatcherConfig{MinConfidence: 50, MaxPerCycle: 10}, marker, &fakeHistory{})
	d.AddNotifier(notifier)

	sent, err := d.Dispatch(context.Background(), []market.PatternMatch{matchWithConfidence(1, 80)})
	if err != nil {
		t.Fatalf("send failures must not fail the dispatch: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
	if len(marker.marked) != 0 {
		t.Errorf("match must not be marked notified after a failed send, marked=%v", marker.marked)
	}
}

// TestDispatchRateLimit verifies the rolling window budget
func TestDispatchRateLimit(t *testing.T) {
	notifier := &fakeNotifier{name: "fake", enabled: true}
	history := &fakeHistory{}
	// Window already full.
	for i := 0; i < 5; i++ {
		history.records = append(history.records, time.Now().Add(-time.Minute))
	}

	d := NewDispatcher(DispatcherConfig{
		MinConfidence: 50,
		MaxPerCycle:   10,
		MaxPerWindow:  5,
		RateWindow:    time.Hour,
	}, &fakeMarker{}, history)
	d.AddNotifier(notifier)

	sent, err := d.Dispatch(context.Background(), []market.PatternMatch{matchWithConfidence(1, 90)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0 with exhausted rate window", sent)
	}
}

// TestDispatchPartialBudget verifies only the remaining budget is used
func TestDispatchPartialBudget(t *testing.T) {
	notifier := &fakeNotifier{name: "fake", enabled: true}
	history := &fakeHistory{}
	for i := 0; i < 4; i++ {
		history.records = append(history.records, time.Now().Add(-time.Minute))
	}

	d := NewDispatcher(DispatcherConfig{
		MinConfidence: 50,
		MaxPerCycle:   10,
		MaxPerWindow:  5,
		RateWindow:    time.Hour,
	}, &fakeMarker{}, history)
	d.AddNotifier(notifier)

	sent, err := d.Dispatch(context.Background(), []market.PatternMatch{
		matchWithConfidence(1, 90),
		matchWithConfidence(2, 85),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1 with one slot left in the window", sent)
	}
}

// TestDispatchSkipsDisabledNotifiers verifies disabled channels don't count
func TestDispatchSkipsDisabledNotifiers(t *testing.T) {
	disabled := &fakeNotifier{name: "off", enabled: false}
	enabled := &fakeNotifier{name: "on", enabled: true}
	marker := &fakeMarker{}
	d := NewDispatcher(DispatcherConfig{MinConfidence: 50, MaxPerCycle: 10}, marker, &fakeHistory{})
	d.AddNotifier(disabled)
	d.AddNotifier(enabled)

	sent, err := d.Dispatch(context.Background(), []market.PatternMatch{matchWithConfidence(7, 80)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 || len(enabled.sent) != 1 || len(disabled.sent) != 0 {
		t.Errorf("expected only enabled notifier used: sent=%d on=%d off=%d",
			sent, len(enabled.sent), len(disabled.sent))
	}
	if len(marker.marked) != 1 || marker.marked[0] != 7 {
		t.Errorf("expected match 7 marked notified, got %v", marker.marked)
	}
}
