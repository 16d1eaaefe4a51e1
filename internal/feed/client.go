// Package feed provides the inbound bar-fetch boundary: a polling HTTP
// client and a streaming websocket client for live base-timeframe bars.
package feed

import (
	"context"
	"errors"
	"time"

	"pattern-sentinel/internal/market"
)

// ErrUnavailable wraps transient transport failures (timeouts, resets,
// upstream 5xx). The orchestrator retries these and eventually
// reconnects; anything else is surfaced as-is.
var ErrUnavailable = errors.New("feed unavailable")

// Client fetches base-timeframe bars for an instrument. Implementations
// must return bars ordered oldest first.
type Client interface {
	FetchBars(ctx context.Context, instrument string, since time.Time) ([]market.Bar, error)
}

// Reconnector is implemented by clients that hold connection state the
// orchestrator should reset after repeated transient failures.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}
