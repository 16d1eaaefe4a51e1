package market

import "time"

// Timeframe represents a supported bar interval
type Timeframe string

const (
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
	Timeframe1d Timeframe = "1d"
)

// BaseTimeframe is the interval bars are ingested at; all other
// timeframes are derived from it by resampling.
const BaseTimeframe = Timeframe5m

// DerivedTimeframes returns the timeframes produced by aggregation
var DerivedTimeframes = []Timeframe{Timeframe1h, Timeframe4h, Timeframe1d}

// AllTimeframes returns every timeframe the pipeline operates on
var AllTimeframes = []Timeframe{Timeframe5m, Timeframe1h, Timeframe4h, Timeframe1d}

// Duration returns the bar interval length
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is a supported timeframe
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe5m, Timeframe1h, Timeframe4h, Timeframe1d:
		return true
	}
	return false
}

// BucketStart returns the start of the aggregation bucket containing t.
// Buckets are aligned to UTC: hour boundaries for 1h, 4-hour boundaries
// for 4h, and calendar days for 1d.
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	u := t.UTC()
	switch tf {
	case Timeframe5m:
		return u.Truncate(5 * time.Minute)
	case Timeframe1h:
		return u.Truncate(time.Hour)
	case Timeframe4h:
		return time.Date(u.Year(), u.Month(), u.Day(), u.Hour()-u.Hour()%4, 0, 0, 0, time.UTC)
	case Timeframe1d:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return u
	}
}
