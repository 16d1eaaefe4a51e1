// Package indicator computes the technical indicators consumed by the
// pattern detectors: RSI, MACD and Bollinger Bands.
package indicator

import "math"

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the simple moving average of the last period values
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMASeries calculates the exponential moving average series, seeded
// with the SMA of the first period values. The returned slice has the
// same length as the input; entries before index period-1 are zero and
// not meaningful.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	out := make([]float64, len(values))

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)
	out[period-1] = seed

	multiplier := 2.0 / float64(period+1)
	ema := seed
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Relative Strength Index over the last period
// deltas using rolling means of gains and losses. Requires at least
// period+1 values; returns ok=false otherwise rather than a neutral
// placeholder, so callers can distinguish "no data" from a real value.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// RSISeries calculates RSI at every index from period onward. The
// returned slice aligns with the input: entry i is the RSI of the
// window ending at closes[i], zero (not meaningful) for i < period.
func RSISeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	out := make([]float64, len(closes))
	for i := period; i < len(closes); i++ {
		v, ok := RSI(closes[:i+1], period)
		if ok {
			out[i] = v
		}
	}
	return out
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACD holds the MACD line, signal line and histogram
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// ComputeMACD calculates the MACD line (fast EMA - slow EMA), the
// signal line (EMA of the MACD line) and the histogram. Requires at
// least slow+signal values.
func ComputeMACD(closes []float64, fast, slow, signal int) (MACD, bool) {
	if len(closes) < slow+signal {
		return MACD{}, false
	}

	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)

	// The MACD line is defined from the first index where the slow EMA
	// is seeded.
	macdLine := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdLine = append(macdLine, fastEMA[i]-slowEMA[i])
	}

	signalEMA := EMASeries(macdLine, signal)
	if signalEMA == nil {
		return MACD{}, false
	}

	line := macdLine[len(macdLine)-1]
	sig := signalEMA[len(signalEMA)-1]
	return MACD{
		Line:      line,
		Signal:    sig,
		Histogram: line - sig,
	}, true
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// Bollinger holds the three band values
type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Width returns the band width relative to the middle band, a cheap
// volatility measure used by the breakout filter
func (b Bollinger) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// ComputeBollinger calculates Bollinger Bands: middle = SMA(period),
// band offset = stdDev multiples of the rolling standard deviation.
// Requires at least period values.
func ComputeBollinger(closes []float64, period int, stdDev float64) (Bollinger, bool) {
	middle, ok := SMA(closes, period)
	if !ok {
		return Bollinger{}, false
	}

	variance := 0.0
	for _, v := range closes[len(closes)-period:] {
		d := v - middle
		variance += d * d
	}
	variance /= float64(period)
	offset := stdDev * math.Sqrt(variance)

	return Bollinger{
		Upper:  middle + offset,
		Middle: middle,
		Lower:  middle - offset,
	}, true
}
