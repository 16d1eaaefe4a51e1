package aggregate

import (
	"testing"
	"time"

	"pattern-sentinel/internal/market"
)

func baseBar(ts time.Time, o, h, l, c, v float64) market.Bar {
	return market.Bar{
		Instrument: "EURUSD",
		Timeframe:  market.Timeframe5m,
		Timestamp:  ts,
		Open:       o,
		High:       h,
		Low:        l,
		Close:      c,
		Volume:     v,
	}
}

// TestResampleHourlyBucket verifies the OHLCV fold for a single hour bucket
func TestResampleHourlyBucket(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	var bars []market.Bar
	for i := 0; i < 12; i++ {
		ts := start.Add(time.Duration(i) * 5 * time.Minute)
		price := 149.00 + float64(i)*0.10
		bars = append(bars, baseBar(ts, price, price+0.05, price-0.05, price+0.02, 1000))
	}

	out := Resample(bars, market.Timeframe1h)
	if len(out) != 1 {
		t.Fatalf("expected 1 hourly bar, got %d", len(out))
	}

	agg := out[0]
	if !agg.Timestamp.Equal(start) {
		t.Errorf("bucket start = %v, want %v", agg.Timestamp, start)
	}
	if agg.Open != 149.00 {
		t.Errorf("open = %.4f, want first bar open 149.00", agg.Open)
	}
	if agg.Close != 149.00+11*0.10+0.02 {
		t.Errorf("close = %.4f, want last bar close %.4f", agg.Close, 149.00+11*0.10+0.02)
	}
	if agg.High != 149.00+11*0.10+0.05 {
		t.Errorf("high = %.4f, want max high %.4f", agg.High, 149.00+11*0.10+0.05)
	}
	if agg.Low != 149.00-0.05 {
		t.Errorf("low = %.4f, want min low %.4f", agg.Low, 149.00-0.05)
	}
	if agg.Volume != 12000 {
		t.Errorf("volume = %.0f, want sum 12000", agg.Volume)
	}
	if agg.Timeframe != market.Timeframe1h {
		t.Errorf("timeframe = %s, want 1h", agg.Timeframe)
	}
}

// TestResampleIdempotent verifies re-aggregating the same input yields identical output
func TestResampleIdempotent(t *testing.T) {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	var bars []market.Bar
	for i := 0; i < 100; i++ {
		ts := start.Add(time.Duration(i) * 5 * time.Minute)
		price := 100 + float64(i%7)*0.3
		bars = append(bars, baseBar(ts, price, price+1, price-1, price+0.1, 500))
	}

	first := Resample(bars, market.Timeframe4h)
	second := Resample(bars, market.Timeframe4h)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("bar %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// TestResampleGapsOmitBuckets verifies missing intervals produce no synthetic bars
func TestResampleGapsOmitBuckets(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	bars := []market.Bar{
		baseBar(start, 100, 101, 99, 100.5, 10),
		// Two-hour gap: 11:00 bucket has no bars.
		baseBar(start.Add(2*time.Hour), 102, 103, 101, 102.5, 20),
	}

	out := Resample(bars, market.Timeframe1h)
	if len(out) != 2 {
		t.Fatalf("expected 2 hourly bars with gap omitted, got %d", len(out))
	}
	if !out[0].Timestamp.Equal(start) || !out[1].Timestamp.Equal(start.Add(2*time.Hour)) {
		t.Errorf("unexpected bucket starts: %v, %v", out[0].Timestamp, out[1].Timestamp)
	}
}

// TestResampleDailyAlignment verifies 1d buckets align to calendar days
func TestResampleDailyAlignment(t *testing.T) {
	// Bars straddling midnight UTC.
	bars := []market.Bar{
		baseBar(time.Date(2025, 6, 2, 23, 50, 0, 0, time.UTC), 100, 101, 99, 100, 10),
		baseBar(time.Date(2025, 6, 2, 23, 55, 0, 0, time.UTC), 100, 102, 100, 101, 10),
		baseBar(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), 101, 103, 101, 102, 10),
	}

	out := Resample(bars, market.Timeframe1d)
	if len(out) != 2 {
		t.Fatalf("expected 2 daily bars, got %d", len(out))
	}
	if out[0].Close != 101 || out[0].Volume != 20 {
		t.Errorf("day 1 close/volume = %.2f/%.0f, want 101/20", out[0].Close, out[0].Volume)
	}
	if out[1].Open != 101 || out[1].Volume != 10 {
		t.Errorf("day 2 open/volume = %.2f/%.0f, want 101/10", out[1].Open, out[1].Volume)
	}
}

// TestResampleUnorderedInput verifies out-of-order input is handled
func TestResampleUnorderedInput(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	bars := []market.Bar{
		baseBar(start.Add(10*time.Minute), 102, 103, 101, 102, 10),
		baseBar(start, 100, 101, 99, 100, 10),
		baseBar(start.Add(5*time.Minute), 101, 102, 100, 101, 10),
	}

	out := Resample(bars, market.Timeframe1h)
	if len(out) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(out))
	}
	if out[0].Open != 100 || out[0].Close != 102 {
		t.Errorf("open/close = %.2f/%.2f, want 100/102", out[0].Open, out[0].Close)
	}
}

// TestResampleEmptyInput verifies empty input yields no bars
func TestResampleEmptyInput(t *testing.T) {
	if out := Resample(nil, market.Timeframe1h); out != nil {
		t.Errorf("expected nil output for empty input, got %v", out)
	}
}

// TestResampleFourHourBoundaries verifies 4h buckets start at 0/4/8/12/16/20 UTC
func TestResampleFourHourBoundaries(t *testing.T) {
	bars := []market.Bar{
		baseBar(time.Date(2025, 6, 2, 7, 55, 0, 0, time.UTC), 100, 101, 99, 100, 10),
		baseBar(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), 100, 102, 100, 101, 10),
	}

	out := Resample(bars, market.Timeframe4h)
	if len(out) != 2 {
		t.Fatalf("expected 2 bars across the 08:00 boundary, got %d", len(out))
	}
	want0 := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	want1 := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	if !out[0].Timestamp.Equal(want0) || !out[1].Timestamp.Equal(want1) {
		t.Errorf("bucket starts = %v, %v; want %v, %v", out[0].Timestamp, out[1].Timestamp, want0, want1)
	}
}
