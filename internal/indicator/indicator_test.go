package indicator

import (
	"math"
	"testing"
	"time"

	"pattern-sentinel/internal/market"
)

func closesToBars(closes []float64) []market.Bar {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Instrument: "EURUSD",
			Timeframe:  market.Timeframe5m,
			Timestamp:  start.Add(time.Duration(i) * 5 * time.Minute),
			Open:       c,
			High:       c + 0.1,
			Low:        c - 0.1,
			Close:      c,
			Volume:     100,
		}
	}
	return bars
}

// TestRSIBounds verifies 0 <= RSI <= 100 for varied inputs
func TestRSIBounds(t *testing.T) {
	series := [][]float64{
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
		{5, 7, 4, 8, 3, 9, 2, 10, 1, 11, 6, 5, 7, 4, 8},
		{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100},
	}
	for i, closes := range series {
		rsi, ok := RSI(closes, 14)
		if !ok {
			t.Fatalf("series %d: RSI unexpectedly absent", i)
		}
		if rsi < 0 || rsi > 100 {
			t.Errorf("series %d: RSI %.4f out of [0,100]", i, rsi)
		}
	}
}

// TestRSIAllGains verifies RSI = 100 when every delta is a gain
func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("RSI unexpectedly absent")
	}
	if rsi != 100 {
		t.Errorf("RSI = %.4f, want 100 for all-gain window", rsi)
	}
}

// TestRSIInsufficientData verifies RSI is absent below period+1 bars
func TestRSIInsufficientData(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14} // 14 values, need 15
	if _, ok := RSI(closes, 14); ok {
		t.Error("RSI should be absent with fewer than period+1 values")
	}
}

// TestMACDIdentity verifies the MACD line equals fast EMA - slow EMA
func TestMACDIdentity(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 3*math.Sin(float64(i)/5) + float64(i)*0.05
	}

	m, ok := ComputeMACD(closes, 12, 26, 9)
	if !ok {
		t.Fatal("MACD unexpectedly absent")
	}

	fast := EMASeries(closes, 12)
	slow := EMASeries(closes, 26)
	want := fast[len(fast)-1] - slow[len(slow)-1]

	if math.Abs(m.Line-want) > 1e-9 {
		t.Errorf("MACD line = %.10f, want EMA_fast - EMA_slow = %.10f", m.Line, want)
	}
	if math.Abs(m.Histogram-(m.Line-m.Signal)) > 1e-9 {
		t.Errorf("histogram = %.10f, want line - signal = %.10f", m.Histogram, m.Line-m.Signal)
	}
}

// TestMACDInsufficientData verifies MACD is absent below slow+signal bars
func TestMACDInsufficientData(t *testing.T) {
	closes := make([]float64, 34) // need 26+9 = 35
	for i := range closes {
		closes[i] = float64(i)
	}
	if _, ok := ComputeMACD(closes, 12, 26, 9); ok {
		t.Error("MACD should be absent with fewer than slow+signal values")
	}
}

// TestBollingerOrdering verifies upper >= middle >= lower
func TestBollingerOrdering(t *testing.T) {
	series := [][]float64{
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
		{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5},
		{9, 1, 8, 2, 7, 3, 6, 4, 5, 9, 1, 8, 2, 7, 3, 6, 4, 5, 9, 1},
	}
	for i, closes := range series {
		bb, ok := ComputeBollinger(closes, 20, 2.0)
		if !ok {
			t.Fatalf("series %d: bands unexpectedly absent", i)
		}
		if bb.Upper < bb.Middle || bb.Middle < bb.Lower {
			t.Errorf("series %d: band ordering violated: %.4f / %.4f / %.4f",
				i, bb.Upper, bb.Middle, bb.Lower)
		}
	}
}

// TestBollingerFlatSeries verifies zero-variance input collapses the bands
func TestBollingerFlatSeries(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 42
	}
	bb, ok := ComputeBollinger(closes, 20, 2.0)
	if !ok {
		t.Fatal("bands unexpectedly absent")
	}
	if bb.Upper != 42 || bb.Middle != 42 || bb.Lower != 42 {
		t.Errorf("flat series bands = %.4f / %.4f / %.4f, want all 42", bb.Upper, bb.Middle, bb.Lower)
	}
}

// TestEngineComputeAbsentBelowMinimum verifies the typed set leaves
// indicators nil when history is too short
func TestEngineComputeAbsentBelowMinimum(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	set := engine.Compute(closesToBars([]float64{1, 2, 3}))
	if set.RSI != nil || set.MACD != nil || set.Bollinger != nil {
		t.Errorf("expected all indicators absent for 3 bars, got %+v", set)
	}
}

// TestEngineValues verifies persistence rows carry key and params
func TestEngineValues(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.1
	}
	bars := closesToBars(closes)
	set := engine.Compute(bars)

	values := engine.Values("EURUSD", market.Timeframe5m, bars, set)
	if len(values) != 7 {
		t.Fatalf("expected 7 indicator rows (RSI + 3 MACD + 3 BB), got %d", len(values))
	}

	lastTS := bars[len(bars)-1].Timestamp
	seen := map[market.IndicatorType]bool{}
	for _, v := range values {
		if v.Instrument != "EURUSD" || v.Timeframe != market.Timeframe5m {
			t.Errorf("row %s has wrong key: %s/%s", v.Type, v.Instrument, v.Timeframe)
		}
		if !v.Timestamp.Equal(lastTS) {
			t.Errorf("row %s timestamp = %v, want %v", v.Type, v.Timestamp, lastTS)
		}
		if v.Params == "" {
			t.Errorf("row %s has empty params", v.Type)
		}
		seen[v.Type] = true
	}
	for _, want := range []market.IndicatorType{
		market.IndicatorRSI, market.IndicatorMACD, market.IndicatorMACDSignal,
		market.IndicatorMACDHist, market.IndicatorBBUpper, market.IndicatorBBMiddle,
		market.IndicatorBBLower,
	} {
		if !seen[want] {
			t.Errorf("missing indicator row %s", want)
		}
	}
}

// TestRSISeriesAlignment verifies the series matches point computations
func TestRSISeriesAlignment(t *testing.T) {
	closes := []float64{5, 7, 4, 8, 3, 9, 2, 10, 1, 11, 6, 5, 7, 4, 8, 9, 3, 6, 2, 7}
	series := RSISeries(closes, 14)
	if series == nil {
		t.Fatal("series unexpectedly nil")
	}
	for i := 14; i < len(closes); i++ {
		want, ok := RSI(closes[:i+1], 14)
		if !ok {
			t.Fatalf("point RSI absent at %d", i)
		}
		if math.Abs(series[i]-want) > 1e-9 {
			t.Errorf("series[%d] = %.6f, want %.6f", i, series[i], want)
		}
	}
}
