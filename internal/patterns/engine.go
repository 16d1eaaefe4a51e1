package patterns

import (
	"sync"
	"time"

	"pattern-sentinel/internal/market"
)

// Trigger is the core rule outcome of a detector: which side fired, on
// which timeframe, at what price, and the indicator readings behind it.
type Trigger struct {
	Direction market.Direction
	Timeframe market.Timeframe
	Price     float64
	Evidence  map[string]float64
}

// TriggerFunc is a detector's core rule. ok=false means the rule did
// not fire; missing indicators must yield ok=false, never a panic.
type TriggerFunc func(s Snapshot) (Trigger, bool)

// Bonus is an additive confidence condition checked after the trigger
type Bonus struct {
	Name    string
	Weight  float64
	Applies func(s Snapshot, dir market.Direction) bool
}

// Definition is one declarative detector: a trigger rule, a base
// confidence and a list of weighted bonus conditions.
type Definition struct {
	ID      int
	Name    string
	Base    float64
	Trigger TriggerFunc
	Bonuses []Bonus
}

// Engine evaluates the detector definitions against a snapshot
type Engine struct {
	defs []Definition
}

// NewEngine creates a pattern engine with the given definitions.
// Passing nil uses the standard six-detector set.
func NewEngine(defs []Definition) *Engine {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Engine{defs: defs}
}

// Detect evaluates every definition and the composite quorum over the
// snapshot and returns zero or more candidate matches. Detectors run
// concurrently; the snapshot is a pure read so they never race. Output
// order follows definition order regardless of completion order.
func (e *Engine) Detect(instrument string, now time.Time, s Snapshot) []market.PatternMatch {
	results := make([]*market.PatternMatch, len(e.defs))

	var wg sync.WaitGroup
	for i, def := range e.defs {
		wg.Add(1)
		go func(i int, def Definition) {
			defer wg.Done()
			if m, ok := e.evaluate(instrument, now, s, def); ok {
				results[i] = &m
			}
		}(i, def)
	}
	wg.Wait()

	var matches []market.PatternMatch
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
		}
	}

	if composite, ok := compositeMatch(instrument, now, s, matches); ok {
		matches = append(matches, composite)
	}

	return matches
}

// evaluate runs one definition: trigger, bonuses, trade levels.
func (e *Engine) evaluate(instrument string, now time.Time, s Snapshot, def Definition) (market.PatternMatch, bool) {
	trig, ok := def.Trigger(s)
	if !ok {
		return market.PatternMatch{}, false
	}

	confidence := def.Base
	evidence := make(map[string]float64, len(trig.Evidence)+len(def.Bonuses))
	for k, v := range trig.Evidence {
		evidence[k] = v
	}
	for _, bonus := range def.Bonuses {
		if bonus.Applies(s, trig.Direction) {
			confidence += bonus.Weight
			evidence["bonus_"+bonus.Name] = bonus.Weight
		}
	}

	entry, stop, target := tradeLevels(s, trig)
	return market.PatternMatch{
		Instrument:  instrument,
		PatternID:   def.ID,
		PatternName: def.Name,
		Timeframe:   trig.Timeframe,
		DetectedAt:  now,
		Confidence:  clampConfidence(confidence),
		Direction:   trig.Direction,
		EntryPrice:  entry,
		StopLoss:    stop,
		TakeProfit:  target,
		Evidence:    evidence,
	}, true
}

// tradeLevels derives entry, stop and target deterministically from the
// trigger price and an indicator-based offset: half the Bollinger band
// span on the trigger timeframe when available, a fixed fraction of the
// price otherwise. Targets use a 1.5 reward-to-risk ratio.
func tradeLevels(s Snapshot, trig Trigger) (entry, stop, target float64) {
	entry = trig.Price

	offset := entry * fallbackOffsetPct
	if bb, ok := s.Bollinger(trig.Timeframe); ok && bb.Upper > bb.Lower {
		offset = (bb.Upper - bb.Lower) / 2
	}

	if trig.Direction == market.DirectionBuy {
		stop = entry - offset
		target = entry + offset*rewardRiskRatio
	} else {
		stop = entry + offset
		target = entry - offset*rewardRiskRatio
	}
	return entry, stop, target
}

func clampConfidence(c float64) float64 {
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}
