// Package patterns evaluates rule-based pattern detectors over a
// multi-timeframe snapshot of bars and indicators. All six detectors
// share one input/output contract, so they are expressed as declarative
// rule definitions evaluated by a single generic engine.
package patterns

import (
	"pattern-sentinel/internal/indicator"
	"pattern-sentinel/internal/market"
)

// TimeframeData is one timeframe's slice of the snapshot: the bar
// window the indicators were computed from, plus the computed set.
type TimeframeData struct {
	Bars       []market.Bar
	Indicators indicator.Set
}

// Snapshot maps each timeframe to its bars and indicators. Detectors
// are pure functions of a snapshot; a missing timeframe or absent
// indicator means the rule reading it is simply not satisfied.
type Snapshot map[market.Timeframe]TimeframeData

// LastClose returns the most recent close on tf
func (s Snapshot) LastClose(tf market.Timeframe) (float64, bool) {
	d, ok := s[tf]
	if !ok || len(d.Bars) == 0 {
		return 0, false
	}
	return d.Bars[len(d.Bars)-1].Close, true
}

// LastBar returns the most recent bar on tf
func (s Snapshot) LastBar(tf market.Timeframe) (market.Bar, bool) {
	d, ok := s[tf]
	if !ok || len(d.Bars) == 0 {
		return market.Bar{}, false
	}
	return d.Bars[len(d.Bars)-1], true
}

// Closes returns the close series on tf, oldest first
func (s Snapshot) Closes(tf market.Timeframe) []float64 {
	d, ok := s[tf]
	if !ok {
		return nil
	}
	out := make([]float64, len(d.Bars))
	for i, b := range d.Bars {
		out[i] = b.Close
	}
	return out
}

// RSI returns the RSI on tf if present
func (s Snapshot) RSI(tf market.Timeframe) (float64, bool) {
	d, ok := s[tf]
	if !ok || d.Indicators.RSI == nil {
		return 0, false
	}
	return *d.Indicators.RSI, true
}

// MACD returns the MACD on tf if present
func (s Snapshot) MACD(tf market.Timeframe) (indicator.MACD, bool) {
	d, ok := s[tf]
	if !ok || d.Indicators.MACD == nil {
		return indicator.MACD{}, false
	}
	return *d.Indicators.MACD, true
}

// Bollinger returns the Bollinger Bands on tf if present
func (s Snapshot) Bollinger(tf market.Timeframe) (indicator.Bollinger, bool) {
	d, ok := s[tf]
	if !ok || d.Indicators.Bollinger == nil {
		return indicator.Bollinger{}, false
	}
	return *d.Indicators.Bollinger, true
}
