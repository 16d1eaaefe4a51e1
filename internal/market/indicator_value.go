package market

import "time"

// IndicatorType identifies a persisted indicator series
type IndicatorType string

const (
	IndicatorRSI        IndicatorType = "RSI"
	IndicatorMACD       IndicatorType = "MACD"
	IndicatorMACDSignal IndicatorType = "MACD_SIGNAL"
	IndicatorMACDHist   IndicatorType = "MACD_HIST"
	IndicatorBBUpper    IndicatorType = "BB_UPPER"
	IndicatorBBMiddle   IndicatorType = "BB_MIDDLE"
	IndicatorBBLower    IndicatorType = "BB_LOWER"
)

// IndicatorValue is one computed indicator observation. Values are
// unique per (instrument, timeframe, type, timestamp); recomputing the
// same key overwrites rather than duplicating.
type IndicatorValue struct {
	Instrument string        `json:"instrument"`
	Timeframe  Timeframe     `json:"timeframe"`
	Type       IndicatorType `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	Value      float64       `json:"value"`
	Params     string        `json:"params"` // e.g. "period=14" or "fast=12,slow=26,signal=9"
}
