// Package notification forwards qualifying pattern matches to external
// channels and enforces the dispatch policy: minimum confidence,
// per-cycle cap and a rolling rate limit.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pattern-sentinel/internal/market"
)

// Notifier is a single outbound channel for pattern matches
type Notifier interface {
	Send(ctx context.Context, match *market.PatternMatch) error
	Name() string
	IsEnabled() bool
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends pattern alerts via the Telegram bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string // override for tests; defaults to api.telegram.org
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		baseURL:  baseURL,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, match *market.PatternMatch) error {
	if !t.enabled {
		return nil
	}

	emoji := "🟢"
	if match.Direction == market.DirectionSell {
		emoji = "🔴"
	}
	message := fmt.Sprintf("%s *%s* %s\n\n%s %s @ %.5f\nSL: %.5f | TP: %.5f\nConfidence: %.0f",
		emoji, match.PatternName, match.Instrument,
		match.Direction, match.Timeframe, match.EntryPrice,
		match.StopLoss, match.TakeProfit, match.Confidence)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// WEBHOOK NOTIFIER
// =============================================================================

// WebhookNotifier POSTs the match as JSON to a configured endpoint
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// WebhookConfig holds webhook configuration
type WebhookConfig struct {
	URL     string
	Enabled bool
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     config.URL,
		enabled: config.Enabled && config.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

func (w *WebhookNotifier) Send(ctx context.Context, match *market.PatternMatch) error {
	if !w.enabled {
		return nil
	}

	jsonData, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
