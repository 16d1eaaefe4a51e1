package patterns

import (
	"fmt"
	"time"

	"pattern-sentinel/internal/indicator"
	"pattern-sentinel/internal/market"
)

// Pattern IDs. Stable: persisted matches and the dedup window key on them.
const (
	PatternTrendReversal = 1
	PatternPullback      = 2
	PatternDivergence    = 3
	PatternBreakout      = 4
	PatternRSIBattle     = 5
	PatternComposite     = 6
)

// Rule thresholds. These were tuned per detector, not globally: the
// pullback band deliberately overlaps the classic 30/70 extremes and
// the battle band is narrower than neutral. Do not unify them.
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
	rsiExtremeHi  = 80.0
	rsiExtremeLo  = 20.0

	pullbackLongLow   = 30.0
	pullbackLongHigh  = 55.0
	pullbackShortLow  = 45.0
	pullbackShortHigh = 70.0

	battleLow    = 45.0
	battleHigh   = 55.0
	battleWindow = 4

	// Breakouts through a band already stretched wider than this are
	// treated as exhausted volatility, not entries.
	maxBreakoutBandWidth = 0.08

	divergenceLookback  = 24
	divergenceRSIPeriod = 14

	compositeQuorum = 3

	fallbackOffsetPct = 0.005
	rewardRiskRatio   = 1.5
)

// higherTimeframes are scanned highest-first by the reversal rule
var higherTimeframes = []market.Timeframe{market.Timeframe1d, market.Timeframe4h}

var timeframeRank = map[market.Timeframe]int{
	market.Timeframe5m: 0,
	market.Timeframe1h: 1,
	market.Timeframe4h: 2,
	market.Timeframe1d: 3,
}

// DefaultDefinitions returns the standard five detector definitions.
// The composite quorum detector is built into the engine because it
// consumes the other detectors' output rather than the snapshot.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:      PatternTrendReversal,
			Name:    "trend_reversal",
			Base:    50,
			Trigger: trendReversalTrigger,
			Bonuses: []Bonus{
				{Name: "rsi_extreme", Weight: 15, Applies: higherRSIExtreme},
				{Name: "hourly_momentum", Weight: 10, Applies: momentumAligned(market.Timeframe1h)},
				{Name: "lower_tf_rsi", Weight: 10, Applies: lowerTimeframeRSIConfirms},
			},
		},
		{
			ID:      PatternPullback,
			Name:    "pullback_continuation",
			Base:    50,
			Trigger: pullbackTrigger,
			Bonuses: []Bonus{
				{Name: "all_tf_in_band", Weight: 10, Applies: allTimeframesInPullbackBand},
				{Name: "daily_band_position", Weight: 10, Applies: dailyBandPositionConfirms},
				{Name: "hourly_momentum", Weight: 10, Applies: momentumAligned(market.Timeframe1h)},
			},
		},
		{
			ID:      PatternDivergence,
			Name:    "divergence",
			Base:    50,
			Trigger: divergenceTrigger,
			Bonuses: []Bonus{
				{Name: "rsi_extreme", Weight: 10, Applies: hourlyRSIExtreme},
				{Name: "four_hour_momentum", Weight: 10, Applies: momentumAligned(market.Timeframe4h)},
			},
		},
		{
			ID:      PatternBreakout,
			Name:    "band_breakout",
			Base:    50,
			Trigger: breakoutTrigger,
			Bonuses: []Bonus{
				{Name: "volume_surge", Weight: 10, Applies: breakoutVolumeSurge},
				{Name: "momentum", Weight: 10, Applies: breakoutMomentum},
				{Name: "rsi_confirms", Weight: 5, Applies: breakoutRSIConfirms},
			},
		},
		{
			ID:      PatternRSIBattle,
			Name:    "rsi_battle",
			Base:    45,
			Trigger: rsiBattleTrigger,
			Bonuses: []Bonus{
				{Name: "tight_bands", Weight: 10, Applies: hourlyBandsTight},
				{Name: "daily_momentum", Weight: 10, Applies: momentumAligned(market.Timeframe1d)},
			},
		},
	}
}

// ============================================================================
// TRIGGERS
// ============================================================================

// trendReversalTrigger: higher timeframe RSI beyond an extreme band
// combined with a MACD crossover against that extreme on the same
// timeframe.
func trendReversalTrigger(s Snapshot) (Trigger, bool) {
	for _, tf := range higherTimeframes {
		rsi, okRSI := s.RSI(tf)
		macd, okMACD := s.MACD(tf)
		price, okPrice := s.LastClose(tf)
		if !okRSI || !okMACD || !okPrice {
			continue
		}

		if rsi >= rsiOverbought && macd.Line < macd.Signal {
			return Trigger{
				Direction: market.DirectionSell,
				Timeframe: tf,
				Price:     price,
				Evidence: map[string]float64{
					"rsi_" + string(tf):         rsi,
					"macd_line_" + string(tf):   macd.Line,
					"macd_signal_" + string(tf): macd.Signal,
				},
			}, true
		}
		if rsi <= rsiOversold && macd.Line > macd.Signal {
			return Trigger{
				Direction: market.DirectionBuy,
				Timeframe: tf,
				Price:     price,
				Evidence: map[string]float64{
					"rsi_" + string(tf):         rsi,
					"macd_line_" + string(tf):   macd.Line,
					"macd_signal_" + string(tf) : macd.Signal,
				},
			}, true
		}
	}
	return Trigger{}, false
}

// pullbackTrigger: mid-range RSI on at least two lower timeframes while
// the daily MACD histogram holds a directional bias.
func pullbackTrigger(s Snapshot) (Trigger, bool) {
	daily, ok := s.MACD(market.Timeframe1d)
	if !ok || daily.Histogram == 0 {
		return Trigger{}, false
	}

	dir := market.DirectionBuy
	lo, hi := pullbackLongLow, pullbackLongHigh
	if daily.Histogram < 0 {
		dir = market.DirectionSell
		lo, hi = pullbackShortLow, pullbackShortHigh
	}

	inBand := 0
	evidence := map[string]float64{"macd_hist_1d": daily.Histogram}
	for _, tf := range []market.Timeframe{market.Timeframe5m, market.Timeframe1h, market.Timeframe4h} {
		rsi, okRSI := s.RSI(tf)
		if okRSI && rsi >= lo && rsi <= hi {
			inBand++
			evidence["rsi_"+string(tf)] = rsi
		}
	}
	if inBand < 2 {
		return Trigger{}, false
	}

	price, okPrice := s.LastClose(market.Timeframe1h)
	if !okPrice {
		return Trigger{}, false
	}
	return Trigger{Direction: dir, Timeframe: market.Timeframe1h, Price: price, Evidence: evidence}, true
}

// divergenceTrigger: price prints a new local extreme on the hourly
// series that the hourly RSI does not confirm.
func divergenceTrigger(s Snapshot) (Trigger, bool) {
	closes := s.Closes(market.Timeframe1h)
	if len(closes) < divergenceRSIPeriod+divergenceLookback {
		return Trigger{}, false
	}
	rsiSeries := indicator.RSISeries(closes, divergenceRSIPeriod)
	if rsiSeries == nil {
		return Trigger{}, false
	}

	price := closes[len(closes)-1]

	// Bearish: price higher-high, RSI lower-high.
	if p2, p1, ok := recentPivots(closes, divergenceLookback, true); ok {
		if p1 > divergenceRSIPeriod && closes[p2] > closes[p1] && rsiSeries[p2] < rsiSeries[p1] {
			return Trigger{
				Direction: market.DirectionSell,
				Timeframe: market.Timeframe1h,
				Price:     price,
				Evidence: map[string]float64{
					"price_pivot_prev": closes[p1],
					"price_pivot_last": closes[p2],
					"rsi_pivot_prev":   rsiSeries[p1],
					"rsi_pivot_last":   rsiSeries[p2],
				},
			}, true
		}
	}

	// Bullish: price lower-low, RSI higher-low.
	if p2, p1, ok := recentPivots(closes, divergenceLookback, false); ok {
		if p1 > divergenceRSIPeriod && closes[p2] < closes[p1] && rsiSeries[p2] > rsiSeries[p1] {
			return Trigger{
				Direction: market.DirectionBuy,
				Timeframe: market.Timeframe1h,
				Price:     price,
				Evidence: map[string]float64{
					"price_pivot_prev": closes[p1],
					"price_pivot_last": closes[p2],
					"rsi_pivot_prev":   rsiSeries[p1],
					"rsi_pivot_last":   rsiSeries[p2],
				},
			}, true
		}
	}

	return Trigger{}, false
}

// breakoutTrigger: close crosses outside a Bollinger band whose width
// is still inside the expected range. Checked hourly first, then on the
// base timeframe.
func breakoutTrigger(s Snapshot) (Trigger, bool) {
	for _, tf := range []market.Timeframe{market.Timeframe1h, market.Timeframe5m} {
		bb, okBB := s.Bollinger(tf)
		price, okPrice := s.LastClose(tf)
		if !okBB || !okPrice {
			continue
		}
		if bb.Width() > maxBreakoutBandWidth {
			continue
		}

		if price > bb.Upper {
			return Trigger{
				Direction: market.DirectionBuy,
				Timeframe: tf,
				Price:     price,
				Evidence: map[string]float64{
					"close_" + string(tf):    price,
					"bb_upper_" + string(tf): bb.Upper,
					"bb_width_" + string(tf): bb.Width(),
				},
			}, true
		}
		if price < bb.Lower {
			return Trigger{
				Direction: market.DirectionSell,
				Timeframe: tf,
				Price:     price,
				Evidence: map[string]float64{
					"close_" + string(tf):    price,
					"bb_lower_" + string(tf): bb.Lower,
					"bb_width_" + string(tf): bb.Width(),
				},
			}, true
		}
	}
	return Trigger{}, false
}

// rsiBattleTrigger: hourly RSI oscillating in a narrow band around the
// 50 midline for several consecutive observations, with the daily MACD
// histogram picking the breakout side.
func rsiBattleTrigger(s Snapshot) (Trigger, bool) {
	closes := s.Closes(market.Timeframe1h)
	if len(closes) < divergenceRSIPeriod+battleWindow {
		return Trigger{}, false
	}
	rsiSeries := indicator.RSISeries(closes, divergenceRSIPeriod)
	if rsiSeries == nil {
		return Trigger{}, false
	}

	for i := len(rsiSeries) - battleWindow; i < len(rsiSeries); i++ {
		if rsiSeries[i] < battleLow || rsiSeries[i] > battleHigh {
			return Trigger{}, false
		}
	}

	daily, ok := s.MACD(market.Timeframe1d)
	if !ok || daily.Histogram == 0 {
		return Trigger{}, false
	}
	dir := market.DirectionBuy
	if daily.Histogram < 0 {
		dir = market.DirectionSell
	}

	price, okPrice := s.LastClose(market.Timeframe1h)
	if !okPrice {
		return Trigger{}, false
	}
	return Trigger{
		Direction: dir,
		Timeframe: market.Timeframe1h,
		Price:     price,
		Evidence: map[string]float64{
			"rsi_last":     rsiSeries[len(rsiSeries)-1],
			"macd_hist_1d": daily.Histogram,
		},
	}, true
}

// ============================================================================
// BONUS CONDITIONS
// ============================================================================

// momentumAligned checks the MACD histogram sign on tf against the
// signal direction
func momentumAligned(tf market.Timeframe) func(Snapshot, market.Direction) bool {
	return func(s Snapshot, dir market.Direction) bool {
		macd, ok := s.MACD(tf)
		if !ok {
			return false
		}
		if dir == market.DirectionBuy {
			return macd.Histogram > 0
		}
		return macd.Histogram < 0
	}
}

func higherRSIExtreme(s Snapshot, dir market.Direction) bool {
	for _, tf := range higherTimeframes {
		rsi, ok := s.RSI(tf)
		if !ok {
			continue
		}
		if dir == market.DirectionSell && rsi >= rsiExtremeHi {
			return true
		}
		if dir == market.DirectionBuy && rsi <= rsiExtremeLo {
			return true
		}
	}
	return false
}

func hourlyRSIExtreme(s Snapshot, dir market.Direction) bool {
	rsi, ok := s.RSI(market.Timeframe1h)
	if !ok {
		return false
	}
	if dir == market.DirectionSell {
		return rsi >= rsiOverbought
	}
	return rsi <= rsiOversold
}

func lowerTimeframeRSIConfirms(s Snapshot, dir market.Direction) bool {
	rsi, ok := s.RSI(market.Timeframe1h)
	if !ok {
		return false
	}
	if dir == market.DirectionSell {
		return rsi >= rsiOverbought
	}
	return rsi <= rsiOversold
}

func allTimeframesInPullbackBand(s Snapshot, dir market.Direction) bool {
	lo, hi := pullbackLongLow, pullbackLongHigh
	if dir == market.DirectionSell {
		lo, hi = pullbackShortLow, pullbackShortHigh
	}
	for _, tf := range []market.Timeframe{market.Timeframe5m, market.Timeframe1h, market.Timeframe4h} {
		rsi, ok := s.RSI(tf)
		if !ok || rsi < lo || rsi > hi {
			return false
		}
	}
	return true
}

func dailyBandPositionConfirms(s Snapshot, dir market.Direction) bool {
	bb, okBB := s.Bollinger(market.Timeframe1d)
	price, okPrice := s.LastClose(market.Timeframe1d)
	if !okBB || !okPrice {
		return false
	}
	if dir == market.DirectionBuy {
		return price > bb.Middle
	}
	return price < bb.Middle
}

func breakoutVolumeSurge(s Snapshot, _ market.Direction) bool {
	for _, tf := range []market.Timeframe{market.Timeframe1h, market.Timeframe5m} {
		d, ok := s[tf]
		if !ok || len(d.Bars) < 10 {
			continue
		}
		sum := 0.0
		for _, b := range d.Bars[:len(d.Bars)-1] {
			sum += b.Volume
		}
		avg := sum / float64(len(d.Bars)-1)
		return avg > 0 && d.Bars[len(d.Bars)-1].Volume > avg*1.5
	}
	return false
}

func breakoutMomentum(s Snapshot, dir market.Direction) bool {
	return momentumAligned(market.Timeframe1h)(s, dir) || momentumAligned(market.Timeframe5m)(s, dir)
}

func breakoutRSIConfirms(s Snapshot, dir market.Direction) bool {
	for _, tf := range []market.Timeframe{market.Timeframe1h, market.Timeframe5m} {
		rsi, ok := s.RSI(tf)
		if !ok {
			continue
		}
		if dir == market.DirectionBuy {
			return rsi > 55
		}
		return rsi < 45
	}
	return false
}

func hourlyBandsTight(s Snapshot, _ market.Direction) bool {
	bb, ok := s.Bollinger(market.Timeframe1h)
	return ok && bb.Width() > 0 && bb.Width() < maxBreakoutBandWidth/2
}

// ============================================================================
// COMPOSITE QUORUM
// ============================================================================

// compositeMatch fires when a quorum of the other detectors agree in
// direction. It inherits trade levels from the strongest agreeing match
// and carries the highest confidence weight of the set.
func compositeMatch(instrument string, now time.Time, s Snapshot, matches []market.PatternMatch) (market.PatternMatch, bool) {
	byDir := map[market.Direction][]market.PatternMatch{}
	for _, m := range matches {
		if m.PatternID == PatternComposite {
			continue
		}
		byDir[m.Direction] = append(byDir[m.Direction], m)
	}

	for _, dir := range []market.Direction{market.DirectionBuy, market.DirectionSell} {
		agreeing := byDir[dir]
		if len(agreeing) < compositeQuorum {
			continue
		}

		best := agreeing[0]
		highest := agreeing[0].Timeframe
		for _, m := range agreeing[1:] {
			if m.Confidence > best.Confidence {
				best = m
			}
			if timeframeRank[m.Timeframe] > timeframeRank[highest] {
				highest = m.Timeframe
			}
		}

		evidence := make(map[string]float64, len(agreeing))
		for _, m := range agreeing {
			evidence[fmt.Sprintf("pattern_%d_confidence", m.PatternID)] = m.Confidence
		}

		return market.PatternMatch{
			Instrument:  instrument,
			PatternID:   PatternComposite,
			PatternName: "composite_quorum",
			Timeframe:   highest,
			DetectedAt:  now,
			Confidence:  clampConfidence(60 + 10*float64(len(agreeing))),
			Direction:   dir,
			EntryPrice:  best.EntryPrice,
			StopLoss:    best.StopLoss,
			TakeProfit:  best.TakeProfit,
			Evidence:    evidence,
		}, true
	}
	return market.PatternMatch{}, false
}

// ============================================================================
// PIVOT HELPERS
// ============================================================================

// recentPivots returns the indices of the two most recent local extremes
// (last, previous) of the series within the lookback window. highs
// selects maxima; otherwise minima.
func recentPivots(series []float64, lookback int, highs bool) (last, prev int, ok bool) {
	start := len(series) - lookback
	if start < 1 {
		start = 1
	}

	var pivots []int
	for i := start; i < len(series)-1; i++ {
		if highs && series[i] >= series[i-1] && series[i] > series[i+1] {
			pivots = append(pivots, i)
		}
		if !highs && series[i] <= series[i-1] && series[i] < series[i+1] {
			pivots = append(pivots, i)
		}
	}
	if len(pivots) < 2 {
		return 0, 0, false
	}
	return pivots[len(pivots)-1], pivots[len(pivots)-2], true
}
