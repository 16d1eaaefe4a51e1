package market

import (
	"fmt"
	"time"
)

// Direction is the side a pattern match suggests
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the other side
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// PatternMatch is the output of a rule-based detector. Confidence is
// bounded to [0,100]. A match is mutated only to set Notified after a
// successful dispatch; it is never deleted by the pipeline.
type PatternMatch struct {
	ID          int64              `json:"id"`
	Instrument  string             `json:"instrument"`
	PatternID   int                `json:"pattern_id"`
	PatternName string             `json:"pattern_name"`
	Timeframe   Timeframe          `json:"timeframe"`
	DetectedAt  time.Time          `json:"detected_at"`
	Confidence  float64            `json:"confidence"`
	Direction   Direction          `json:"direction"`
	EntryPrice  float64            `json:"entry_price"`
	StopLoss    float64            `json:"stop_loss"`
	TakeProfit  float64            `json:"take_profit"`
	Evidence    map[string]float64 `json:"evidence,omitempty"`
	Notified    bool               `json:"notified"`
}

// Summary returns a short human-readable description for logs and alerts
func (m PatternMatch) Summary() string {
	return fmt.Sprintf("%s %s %s @ %.5f (conf %.0f, SL %.5f, TP %.5f)",
		m.PatternName, m.Direction, m.Timeframe, m.EntryPrice, m.Confidence, m.StopLoss, m.TakeProfit)
}
