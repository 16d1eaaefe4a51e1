package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/internal/market"
)

// HTTPClient polls a market-data provider's REST endpoint for bars
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// HTTPConfig holds options for the polling client
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPClient creates a polling bar-feed client
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With().Str("component", "feed_http").Logger(),
	}
}

// Reconnect drops pooled connections so the next fetch dials fresh.
// Stale keep-alive connections are the usual culprit after an upstream
// failover.
func (c *HTTPClient) Reconnect(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	c.logger.Info().Msg("Dropped pooled feed connections")
	return nil
}

type barPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

type barsResponse struct {
	Instrument string       `json:"instrument"`
	Interval   string       `json:"interval"`
	Bars       []barPayload `json:"bars"`
}

// FetchBars requests all 5-minute bars since the given time, ordered
// oldest first. Transport failures and upstream 5xx responses are
// wrapped in ErrUnavailable so the orchestrator can classify them.
func (c *HTTPClient) FetchBars(ctx context.Context, instrument string, since time.Time) ([]market.Bar, error) {
	q := url.Values{}
	q.Set("instrument", instrument)
	q.Set("interval", string(market.BaseTimeframe))
	q.Set("since", since.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/v1/bars?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: upstream returned status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parsing feed response: %w", err)
	}

	bars := make([]market.Bar, 0, len(payload.Bars))
	for _, p := range payload.Bars {
		bars = append(bars, market.Bar{
			Instrument: instrument,
			Timeframe:  market.BaseTimeframe,
			Timestamp:  p.Timestamp.UTC(),
			Open:       p.Open,
			High:       p.High,
			Low:        p.Low,
			Close:      p.Close,
			Volume:     p.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	c.logger.Debug().Int("count", len(bars)).Str("instrument", instrument).Msg("Fetched bars")
	return bars, nil
}
