package indicator

import (
	"fmt"

	"pattern-sentinel/internal/market"
)

// Config holds the indicator periods
type Config struct {
	RSIPeriod        int     `json:"rsi_period"`
	MACDFastPeriod   int     `json:"macd_fast_period"`
	MACDSlowPeriod   int     `json:"macd_slow_period"`
	MACDSignalPeriod int     `json:"macd_signal_period"`
	BBPeriod         int     `json:"bb_period"`
	BBStdDev         float64 `json:"bb_std_dev"`
}

// DefaultConfig returns the standard indicator parameters
func DefaultConfig() Config {
	return Config{
		RSIPeriod:        14,
		MACDFastPeriod:   12,
		MACDSlowPeriod:   26,
		MACDSignalPeriod: 9,
		BBPeriod:         20,
		BBStdDev:         2.0,
	}
}

// Set is the typed per-timeframe indicator snapshot. A nil field means
// the indicator could not be computed from the available history; the
// detectors treat that as "rule not satisfied", never as zero.
type Set struct {
	RSI       *float64   `json:"rsi,omitempty"`
	MACD      *MACD      `json:"macd,omitempty"`
	Bollinger *Bollinger `json:"bollinger,omitempty"`
}

// Engine computes indicator sets from rolling windows of bars. It is
// stateless: each Compute call reads the full window it is given, so
// recomputation is idempotent.
type Engine struct {
	cfg Config
}

// NewEngine creates an indicator engine
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's parameters
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute calculates the latest RSI, MACD and Bollinger values from the
// given bars, ordered oldest first. Indicators with insufficient
// history are left nil.
func (e *Engine) Compute(bars []market.Bar) Set {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	var set Set
	if v, ok := RSI(closes, e.cfg.RSIPeriod); ok {
		set.RSI = &v
	}
	if m, ok := ComputeMACD(closes, e.cfg.MACDFastPeriod, e.cfg.MACDSlowPeriod, e.cfg.MACDSignalPeriod); ok {
		set.MACD = &m
	}
	if b, ok := ComputeBollinger(closes, e.cfg.BBPeriod, e.cfg.BBStdDev); ok {
		set.Bollinger = &b
	}
	return set
}

// Values flattens a set into persistable indicator values keyed by the
// latest bar's timestamp. Absent indicators produce no rows.
func (e *Engine) Values(instrument string, tf market.Timeframe, bars []market.Bar, set Set) []market.IndicatorValue {
	if len(bars) == 0 {
		return nil
	}
	ts := bars[len(bars)-1].Timestamp

	var out []market.IndicatorValue
	add := func(t market.IndicatorType, v float64, params string) {
		out = append(out, market.IndicatorValue{
			Instrument: instrument,
			Timeframe:  tf,
			Type:       t,
			Timestamp:  ts,
			Value:      v,
			Params:     params,
		})
	}

	if set.RSI != nil {
		add(market.IndicatorRSI, *set.RSI, fmt.Sprintf("period=%d", e.cfg.RSIPeriod))
	}
	if set.MACD != nil {
		params := fmt.Sprintf("fast=%d,slow=%d,signal=%d",
			e.cfg.MACDFastPeriod, e.cfg.MACDSlowPeriod, e.cfg.MACDSignalPeriod)
		add(market.IndicatorMACD, set.MACD.Line, params)
		add(market.IndicatorMACDSignal, set.MACD.Signal, params)
		add(market.IndicatorMACDHist, set.MACD.Histogram, params)
	}
	if set.Bollinger != nil {
		params := fmt.Sprintf("period=%d,std_dev=%.2f", e.cfg.BBPeriod, e.cfg.BBStdDev)
		add(market.IndicatorBBUpper, set.Bollinger.Upper, params)
		add(market.IndicatorBBMiddle, set.Bollinger.Middle, params)
		add(market.IndicatorBBLower, set.Bollinger.Lower, params)
	}
	return out
}
