package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/internal/market"
)

// StreamClient subscribes to a websocket bar stream and pushes closed
// base-timeframe bars into a channel. Connection drops trigger an
// exponential-backoff reconnect; the subscription is re-established on
// every successful dial.
type StreamClient struct {
	url        string
	instrument string
	logger     zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	bars chan market.Bar
}

// StreamConfig holds options for the streaming client
type StreamConfig struct {
	URL        string
	Instrument string
	Buffer     int
}

// NewStreamClient creates a streaming bar-feed client
func NewStreamClient(cfg StreamConfig) *StreamClient {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &StreamClient{
		url:        cfg.URL,
		instrument: cfg.Instrument,
		bars:       make(chan market.Bar, buffer),
		logger:     log.With().Str("component", "feed_stream").Logger(),
	}
}

// Bars returns the channel live bars are delivered on. The channel is
// closed when Run exits.
func (c *StreamClient) Bars() <-chan market.Bar {
	return c.bars
}

type subscribeRequest struct {
	Op         string `json:"op"`
	Channel    string `json:"channel"`
	Instrument string `json:"instrument"`
	Interval   string `json:"interval"`
}

type streamMessage struct {
	Channel    string     `json:"channel"`
	Instrument string     `json:"instrument"`
	Closed     bool       `json:"closed"`
	Bar        barPayload `json:"bar"`
}

// Run connects, subscribes and pumps bars until the context is
// cancelled. Read errors tear the connection down and reconnect with
// exponential backoff capped at one minute.
func (c *StreamClient) Run(ctx context.Context) error {
	defer close(c.bars)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0 // keep retrying until shutdown

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.connectAndPump(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := policy.NextBackOff()
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *StreamClient) connectAndPump(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing stream: %v", ErrUnavailable, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	sub := subscribeRequest{
		Op:         "subscribe",
		Channel:    "bars",
		Instrument: c.instrument,
		Interval:   string(market.BaseTimeframe),
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("%w: subscribing: %v", ErrUnavailable, err)
	}
	c.logger.Info().Str("instrument", c.instrument).Msg("Subscribed to bar stream")

	// Unblock the blocking read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: reading stream: %v", ErrUnavailable, err)
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed stream message")
			continue
		}
		if msg.Channel != "bars" || !msg.Closed {
			continue
		}

		bar := market.Bar{
			Instrument: c.instrument,
			Timeframe:  market.BaseTimeframe,
			Timestamp:  msg.Bar.Timestamp.UTC(),
			Open:       msg.Bar.Open,
			High:       msg.Bar.High,
			Low:        msg.Bar.Low,
			Close:      msg.Bar.Close,
			Volume:     msg.Bar.Volume,
		}

		select {
		case c.bars <- bar:
		default:
			c.logger.Warn().Time("bar_ts", bar.Timestamp).Msg("Bar buffer full, dropping oldest update")
			select {
			case <-c.bars:
			default:
			}
			c.bars <- bar
		}
	}
}
