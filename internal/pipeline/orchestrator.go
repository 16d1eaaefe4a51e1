// Package pipeline drives the end-to-end cycle: fetch base bars,
// aggregate derived timeframes, compute indicators, detect patterns,
// deduplicate, persist and notify. One orchestrator owns one
// instrument.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/internal/aggregate"
	"pattern-sentinel/internal/feed"
	"pattern-sentinel/internal/indicator"
	"pattern-sentinel/internal/market"
	"pattern-sentinel/internal/patterns"
)

// ErrTooManyFailures is the terminal error the pipeline surfaces when
// the consecutive-failure ceiling is reached and reconnecting fails
var ErrTooManyFailures = errors.New("too many consecutive cycle failures")

// State labels the step the orchestrator is currently executing
type State string

const (
	StateIdle        State = "IDLE"
	StateFetching    State = "FETCHING"
	StateAggregating State = "AGGREGATING"
	StateComputing   State = "COMPUTING_INDICATORS"
	StateDetecting   State = "DETECTING_PATTERNS"
	StatePersisting  State = "PERSISTING"
	StateNotifying   State = "NOTIFYING"
)

// BarStore is the bar persistence the pipeline depends on
type BarStore interface {
	SaveBars(ctx context.Context, bars []market.Bar) error
	LatestBars(ctx context.Context, instrument string, tf market.Timeframe, n int) ([]market.Bar, error)
}

// IndicatorStore persists computed indicator values
type IndicatorStore interface {
	SaveIndicatorValues(ctx context.Context, values []market.IndicatorValue) error
}

// MatchStore persists fresh pattern matches and assigns their IDs
type MatchStore interface {
	SavePatternMatch(ctx context.Context, m *market.PatternMatch) error
}

// DuplicateGuard filters matches already emitted inside the
// suppression window
type DuplicateGuard interface {
	IsDuplicate(ctx context.Context, m market.PatternMatch) (bool, error)
}

// AlertDispatcher forwards fresh matches to the notification channels
type AlertDispatcher interface {
	Dispatch(ctx context.Context, matches []market.PatternMatch) (int, error)
}

// Pinger probes a backing connection during reconnect
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the orchestrator settings
type Config struct {
	Instrument       string        `json:"instrument"`
	CycleInterval    time.Duration `json:"cycle_interval"`     // default 5m
	WindowSize       int           `json:"window_size"`        // base bars per snapshot
	FullRefreshEvery time.Duration `json:"full_refresh_every"` // re-fetch the whole window
	FailureThreshold int           `json:"failure_threshold"`  // consecutive failures before reconnect
	Retry            RetryPolicy   `json:"retry"`
}

// DefaultConfig returns the standard pipeline settings for an instrument
func DefaultConfig(instrument string) Config {
	return Config{
		Instrument:       instrument,
		CycleInterval:    5 * time.Minute,
		WindowSize:       1000,
		FullRefreshEvery: 24 * time.Hour,
		FailureThreshold: defaultFailureThreshold,
		Retry:            DefaultRetryPolicy(),
	}
}

// Status is a point-in-time view of the orchestrator for monitoring
type Status struct {
	State               State         `json:"state"`
	Instrument          string        `json:"instrument"`
	CyclesCompleted     uint64        `json:"cycles_completed"`
	CyclesFailed        uint64        `json:"cycles_failed"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	MatchesDetected     uint64        `json:"matches_detected"`
	MatchesSuppressed   uint64        `json:"matches_suppressed"`
	NotificationsSent   uint64        `json:"notifications_sent"`
	LastCycleAt         time.Time     `json:"last_cycle_at"`
	LastCycleDuration   time.Duration `json:"last_cycle_duration"`
	LastBarAt           time.Time     `json:"last_bar_at"`
	LastError           string        `json:"last_error,omitempty"`
}

// Deps are the collaborators the orchestrator wires together
type Deps struct {
	Feed       feed.Client
	Bars       BarStore
	Indicators IndicatorStore
	Matches    MatchStore
	Guard      DuplicateGuard
	Dispatcher AlertDispatcher
	Indicator  *indicator.Engine
	Patterns   *patterns.Engine
	Pinger     Pinger // optional; probed on reconnect
}

// Orchestrator runs the detection cycle for one instrument
type Orchestrator struct {
	cfg      Config
	deps     Deps
	failures *FailureTracker
	logger   zerolog.Logger

	mu              sync.Mutex
	state           State
	lastBarTS       time.Time
	lastFullRefresh time.Time
	status          Status
}

// NewOrchestrator creates a pipeline orchestrator
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		failures: NewFailureTracker(cfg.FailureThreshold),
		state:    StateIdle,
		logger:   log.With().Str("component", "pipeline").Str("instrument", cfg.Instrument).Logger(),
	}
}

// Status returns a snapshot of the orchestrator's counters
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	s.State = o.state
	s.Instrument = o.cfg.Instrument
	s.ConsecutiveFailures = o.failures.Consecutive()
	return s
}

// Run executes cycles on the configured interval until the context is
// cancelled. One cycle runs immediately on startup.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info().
		Dur("interval", o.cfg.CycleInterval).
		Int("window", o.cfg.WindowSize).
		Msg("Pipeline started")

	ticker := time.NewTicker(o.cfg.CycleInterval)
	defer ticker.Stop()

	if err := o.cycle(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := o.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// cycle runs one cycle and applies the failure policy around it. The
// returned error is terminal: the ceiling was hit and reconnecting did
// not bring the collaborators back.
func (o *Orchestrator) cycle(ctx context.Context) error {
	err := o.RunCycle(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		o.failures.Reset()
		return nil
	}

	o.logger.Error().Err(err).Msg("Cycle failed")
	o.mu.Lock()
	o.status.CyclesFailed++
	o.status.LastError = err.Error()
	o.mu.Unlock()

	if o.failures.Record(err) {
		if rerr := o.reconnect(ctx); rerr != nil {
			return fmt.Errorf("%w after %d consecutive failures: %v",
				ErrTooManyFailures, o.failures.Consecutive(), err)
		}
	}
	return nil
}

// RunCycle executes a single fetch-to-notify cycle. It is exported so
// the backfill tool and tests can drive the pipeline step by step.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	start := time.Now()
	defer func() {
		o.setState(StateIdle)
		o.mu.Lock()
		o.status.LastCycleAt = start
		o.status.LastCycleDuration = time.Since(start)
		o.mu.Unlock()
	}()

	o.setState(StateFetching)
	fetched, err := o.fetchBars(ctx)
	if err != nil {
		return fmt.Errorf("fetching bars: %w", err)
	}

	o.setState(StateAggregating)
	windows, asOf, err := o.buildWindows(ctx)
	if err != nil {
		return fmt.Errorf("aggregating timeframes: %w", err)
	}

	o.setState(StateComputing)
	snapshot, err := o.computeIndicators(ctx, windows)
	if err != nil {
		return fmt.Errorf("computing indicators: %w", err)
	}

	o.setState(StateDetecting)
	matches := o.deps.Patterns.Detect(o.cfg.Instrument, asOf, snapshot)

	o.setState(StatePersisting)
	fresh, err := o.persistMatches(ctx, matches)
	if err != nil {
		return fmt.Errorf("persisting matches: %w", err)
	}

	o.setState(StateNotifying)
	sent, err := o.deps.Dispatcher.Dispatch(ctx, fresh)
	if err != nil {
		return fmt.Errorf("dispatching notifications: %w", err)
	}

	o.mu.Lock()
	o.status.CyclesCompleted++
	o.status.MatchesDetected += uint64(len(matches))
	o.status.MatchesSuppressed += uint64(len(matches) - len(fresh))
	o.status.NotificationsSent += uint64(sent)
	o.status.LastError = ""
	o.mu.Unlock()

	o.logger.Info().
		Str("cycle_id", cycleID).
		Int("fetched", fetched).
		Int("detected", len(matches)).
		Int("fresh", len(fresh)).
		Int("sent", sent).
		Dur("took", time.Since(start)).
		Msg("Cycle completed")
	return nil
}

// fetchBars pulls new base bars from the feed, drops invalid ones and
// persists the rest. A full refresh re-fetches the whole window.
func (o *Orchestrator) fetchBars(ctx context.Context) (int, error) {
	o.mu.Lock()
	since := o.lastBarTS
	refreshDue := o.cfg.FullRefreshEvery > 0 &&
		time.Since(o.lastFullRefresh) >= o.cfg.FullRefreshEvery
	o.mu.Unlock()

	if since.IsZero() || refreshDue {
		window := time.Duration(o.cfg.WindowSize) * market.BaseTimeframe.Duration()
		since = time.Now().UTC().Add(-window)
		o.mu.Lock()
		o.lastFullRefresh = time.Now()
		o.mu.Unlock()
	}

	var bars []market.Bar
	err := o.cfg.Retry.Do(ctx, "fetch_bars", func() error {
		var ferr error
		bars, ferr = o.deps.Feed.FetchBars(ctx, o.cfg.Instrument, since)
		return ferr
	})
	if err != nil {
		return 0, err
	}

	valid := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if verr := b.Validate(); verr != nil {
			o.logger.Warn().Err(verr).Time("bar_ts", b.Timestamp).Msg("Dropping invalid bar")
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	if err := o.deps.Bars.SaveBars(ctx, valid); err != nil {
		return 0, err
	}

	last := valid[len(valid)-1].Timestamp
	o.mu.Lock()
	if last.After(o.lastBarTS) {
		o.lastBarTS = last
		o.status.LastBarAt = last
	}
	o.mu.Unlock()
	return len(valid), nil
}

// buildWindows loads the base window and derives the higher timeframes
// from it. Completed derived buckets are persisted; the returned
// windows include the still-open bucket so detection sees the latest
// price. Derived windows are backfilled from stored history, with the
// freshly resampled bars taking precedence on overlap.
func (o *Orchestrator) buildWindows(ctx context.Context) (map[market.Timeframe][]market.Bar, time.Time, error) {
	base, err := o.deps.Bars.LatestBars(ctx, o.cfg.Instrument, market.BaseTimeframe, o.cfg.WindowSize)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(base) == 0 {
		return nil, time.Time{}, fmt.Errorf("no %s bars available for %s", market.BaseTimeframe, o.cfg.Instrument)
	}

	asOf := base[len(base)-1].Timestamp
	baseEnd := asOf.Add(market.BaseTimeframe.Duration())

	windows := map[market.Timeframe][]market.Bar{market.BaseTimeframe: base}
	for _, tf := range market.DerivedTimeframes {
		resampled := aggregate.Resample(base, tf)

		var completed []market.Bar
		for _, b := range resampled {
			if !b.Timestamp.Add(tf.Duration()).After(baseEnd) {
				completed = append(completed, b)
			}
		}
		if len(completed) > 0 {
			if err := o.deps.Bars.SaveBars(ctx, completed); err != nil {
				return nil, time.Time{}, fmt.Errorf("saving %s bars: %w", tf, err)
			}
		}

		stored, err := o.deps.Bars.LatestBars(ctx, o.cfg.Instrument, tf, o.cfg.WindowSize)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("loading %s window: %w", tf, err)
		}
		windows[tf] = mergeBars(stored, resampled)
	}
	return windows, asOf, nil
}

// computeIndicators computes and persists each timeframe's indicator
// set concurrently and assembles the detection snapshot.
func (o *Orchestrator) computeIndicators(ctx context.Context, windows map[market.Timeframe][]market.Bar) (patterns.Snapshot, error) {
	snapshot := make(patterns.Snapshot, len(windows))
	errs := make(chan error, len(windows))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for tf, bars := range windows {
		wg.Add(1)
		go func(tf market.Timeframe, bars []market.Bar) {
			defer wg.Done()

			set := o.deps.Indicator.Compute(bars)
			values := o.deps.Indicator.Values(o.cfg.Instrument, tf, bars, set)
			if len(values) > 0 {
				if err := o.deps.Indicators.SaveIndicatorValues(ctx, values); err != nil {
					errs <- fmt.Errorf("%s: %w", tf, err)
					return
				}
			}

			mu.Lock()
			snapshot[tf] = patterns.TimeframeData{Bars: bars, Indicators: set}
			mu.Unlock()
		}(tf, bars)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		return nil, err
	}
	return snapshot, nil
}

// persistMatches filters duplicates and stores the remainder. Stored
// matches come back with their assigned IDs so dispatch can mark them.
func (o *Orchestrator) persistMatches(ctx context.Context, matches []market.PatternMatch) ([]market.PatternMatch, error) {
	fresh := make([]market.PatternMatch, 0, len(matches))
	for _, m := range matches {
		dup, err := o.deps.Guard.IsDuplicate(ctx, m)
		if err != nil {
			return nil, err
		}
		if dup {
			o.logger.Debug().
				Str("pattern", m.PatternName).
				Str("timeframe", string(m.Timeframe)).
				Msg("Suppressing duplicate match")
			continue
		}
		if err := o.deps.Matches.SavePatternMatch(ctx, &m); err != nil {
			return nil, err
		}
		fresh = append(fresh, m)
	}
	return fresh, nil
}

// reconnect resets connection state after the failure ceiling is hit:
// the feed client if it supports it, then the store via ping. A
// failure here is terminal for the pipeline.
func (o *Orchestrator) reconnect(ctx context.Context) error {
	o.logger.Warn().
		Int("consecutive_failures", o.failures.Consecutive()).
		Msg("Failure ceiling reached, reconnecting")

	if rc, ok := o.deps.Feed.(feed.Reconnector); ok {
		if err := rc.Reconnect(ctx); err != nil {
			o.logger.Error().Err(err).Msg("Feed reconnect failed")
			return err
		}
	}
	if o.deps.Pinger != nil {
		if err := o.deps.Pinger.Ping(ctx); err != nil {
			o.logger.Error().Err(err).Msg("Store ping failed after reconnect")
			return err
		}
	}

	o.failures.Reset()
	o.logger.Info().Msg("Reconnected")
	return nil
}

// IngestStream persists live bars from a streaming feed as they arrive.
// The periodic cycle still recomputes from the stored window, so stream
// and poll ingestion can run side by side.
func (o *Orchestrator) IngestStream(ctx context.Context, bars <-chan market.Bar) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-bars:
			if !ok {
				return nil
			}
			if err := b.Validate(); err != nil {
				o.logger.Warn().Err(err).Time("bar_ts", b.Timestamp).Msg("Dropping invalid stream bar")
				continue
			}
			if err := o.deps.Bars.SaveBars(ctx, []market.Bar{b}); err != nil {
				o.logger.Error().Err(err).Msg("Failed to persist stream bar")
				continue
			}
			o.mu.Lock()
			if b.Timestamp.After(o.lastBarTS) {
				o.lastBarTS = b.Timestamp
				o.status.LastBarAt = b.Timestamp
			}
			o.mu.Unlock()
		}
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// mergeBars combines stored history with freshly resampled bars,
// preferring the fresh bar when both cover the same bucket.
func mergeBars(stored, fresh []market.Bar) []market.Bar {
	byTS := make(map[time.Time]market.Bar, len(stored)+len(fresh))
	for _, b := range stored {
		byTS[b.Timestamp] = b
	}
	for _, b := range fresh {
		byTS[b.Timestamp] = b
	}

	out := make([]market.Bar, 0, len(byTS))
	for _, b := range byTS {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
