package notification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/internal/market"
)

// SendHistory records successful sends and answers how many happened
// in a rolling window. The redis-backed implementation lives in the
// database package; tests use an in-memory one.
type SendHistory interface {
	RecordSend(ctx context.Context, match market.PatternMatch, at time.Time) error
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// NotifiedMarker flips the persisted match to notified after a
// successful external send.
type NotifiedMarker interface {
	MarkNotified(ctx context.Context, matchID int64) error
}

// DispatcherConfig holds the dispatch policy
type DispatcherConfig struct {
	MinConfidence float64       `json:"min_confidence"`  // matches below this are never sent
	MaxPerCycle   int           `json:"max_per_cycle"`   // highest confidence first
	MaxPerWindow  int           `json:"max_per_window"`  // rolling rate limit; 0 disables
	RateWindow    time.Duration `json:"rate_window"`
}

// DefaultDispatcherConfig returns the standard dispatch policy
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MinConfidence: 60,
		MaxPerCycle:   3,
		MaxPerWindow:  10,
		RateWindow:    time.Hour,
	}
}

// Dispatcher applies the dispatch policy and forwards surviving matches
// through every enabled notifier. A match is marked notified only after
// the send succeeds; a failed send is logged and the match stays
// unnotified.
type Dispatcher struct {
	notifiers []Notifier
	history   SendHistory
	marker    NotifiedMarker
	cfg       DispatcherConfig
	logger    zerolog.Logger
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(cfg DispatcherConfig, marker NotifiedMarker, history SendHistory) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		marker:  marker,
		history: history,
		logger:  log.With().Str("component", "dispatcher").Logger(),
	}
}

// AddNotifier adds an outbound channel
func (d *Dispatcher) AddNotifier(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Dispatch filters, orders and sends the given matches. It returns the
// number of successful sends. Send failures never fail the dispatch as
// a whole; only history/store errors do.
func (d *Dispatcher) Dispatch(ctx context.Context, matches []market.PatternMatch) (int, error) {
	if len(matches) == 0 {
		return 0, nil
	}

	eligible := make([]market.PatternMatch, 0, len(matches))
	for _, m := range matches {
		if m.Confidence >= d.cfg.MinConfidence {
			eligible = append(eligible, m)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Confidence > eligible[j].Confidence
	})

	if d.cfg.MaxPerCycle > 0 && len(eligible) > d.cfg.MaxPerCycle {
		eligible = eligible[:d.cfg.MaxPerCycle]
	}

	budget := -1
	if d.cfg.MaxPerWindow > 0 && d.history != nil {
		sent, err := d.history.CountSince(ctx, time.Now().Add(-d.cfg.RateWindow))
		if err != nil {
			return 0, fmt.Errorf("querying send history: %w", err)
		}
		budget = d.cfg.MaxPerWindow - sent
		if budget <= 0 {
			d.logger.Warn().Int("recent_sends", sent).Msg("Notification rate limit reached, skipping dispatch")
			return 0, nil
		}
	}

	sent := 0
	for i := range eligible {
		if budget == 0 {
			break
		}

		m := &eligible[i]
		if err := d.send(ctx, m); err != nil {
			d.logger.Error().Err(err).
				Str("pattern", m.PatternName).
				Str("timeframe", string(m.Timeframe)).
				Msg("Notification send failed, match left unnotified")
			continue
		}

		if d.marker != nil {
			if err := d.marker.MarkNotified(ctx, m.ID); err != nil {
				return sent, fmt.Errorf("marking match %d notified: %w", m.ID, err)
			}
		}
		m.Notified = true

		if d.history != nil {
			if err := d.history.RecordSend(ctx, *m, time.Now()); err != nil {
				return sent, fmt.Errorf("recording send: %w", err)
			}
		}

		sent++
		if budget > 0 {
			budget--
		}

		d.logger.Info().
			Str("pattern", m.PatternName).
			Str("direction", string(m.Direction)).
			Str("timeframe", string(m.Timeframe)).
			Float64("confidence", m.Confidence).
			Msg("Pattern alert dispatched")
	}

	return sent, nil
}

// send delivers the match through every enabled notifier; the first
// failure aborts so the match is retried as a whole next time.
func (d *Dispatcher) send(ctx context.Context, m *market.PatternMatch) error {
	delivered := false
	for _, n := range d.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, m); err != nil {
			return fmt.Errorf("%s: %w", n.Name(), err)
		}
		delivered = true
	}
	if !delivered {
		return fmt.Errorf("no enabled notifiers")
	}
	return nil
}
