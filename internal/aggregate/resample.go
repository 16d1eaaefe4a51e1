// Package aggregate derives higher-timeframe bars from base 5-minute bars.
package aggregate

import (
	"sort"

	"pattern-sentinel/internal/market"
)

// Resample buckets base bars into fixed-width, UTC-aligned windows for
// the target timeframe and emits one bar per non-empty bucket:
// open = first bar's open, high = max(high), low = min(low),
// close = last bar's close, volume = sum(volume), timestamp = bucket start.
// Empty buckets are omitted; no synthetic bars are produced. The result
// is deterministic for a given input, so re-running is idempotent.
func Resample(base []market.Bar, tf market.Timeframe) []market.Bar {
	if len(base) == 0 {
		return nil
	}

	// Base bars arrive ordered by timestamp from the feed, but the
	// bucket fold depends on it, so enforce the order here.
	bars := make([]market.Bar, len(base))
	copy(bars, base)
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	var out []market.Bar
	for _, b := range bars {
		start := tf.BucketStart(b.Timestamp)
		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(start) {
			out = append(out, market.Bar{
				Instrument: b.Instrument,
				Timeframe:  tf,
				Timestamp:  start,
				Open:       b.Open,
				High:       b.High,
				Low:        b.Low,
				Close:      b.Close,
				Volume:     b.Volume,
			})
			continue
		}

		cur := &out[len(out)-1]
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}

	return out
}

// ResampleAll derives every configured timeframe from the base series
func ResampleAll(base []market.Bar) map[market.Timeframe][]market.Bar {
	out := make(map[market.Timeframe][]market.Bar, len(market.DerivedTimeframes))
	for _, tf := range market.DerivedTimeframes {
		out[tf] = Resample(base, tf)
	}
	return out
}
