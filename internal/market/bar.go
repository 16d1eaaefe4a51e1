package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBar indicates a bar that violates OHLCV invariants.
// Invalid bars are dropped and logged; they never abort a cycle.
var ErrInvalidBar = errors.New("invalid bar")

// Bar is one OHLCV observation for a fixed time interval.
// Timestamp is the bar open time. Bars are immutable once persisted
// and unique per (instrument, timeframe, timestamp).
type Bar struct {
	Instrument string    `json:"instrument"`
	Timeframe  Timeframe `json:"timeframe"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
}

// Validate checks the OHLCV invariants: high >= max(open, close),
// min(open, close) >= low, volume >= 0.
func (b Bar) Validate() error {
	if b.Instrument == "" {
		return fmt.Errorf("%w: empty instrument", ErrInvalidBar)
	}
	if !b.Timeframe.Valid() {
		return fmt.Errorf("%w: unknown timeframe %q", ErrInvalidBar, b.Timeframe)
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidBar)
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	if b.High < hi {
		return fmt.Errorf("%w: high %.8f below body %.8f", ErrInvalidBar, b.High, hi)
	}
	if b.Low > lo {
		return fmt.Errorf("%w: low %.8f above body %.8f", ErrInvalidBar, b.Low, lo)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume %.4f", ErrInvalidBar, b.Volume)
	}
	return nil
}

// Bullish reports whether the bar closed above its open
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// Range returns the high-low span of the bar
func (b Bar) Range() float64 {
	return b.High - b.Low
}
