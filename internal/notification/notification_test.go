package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pattern-sentinel/internal/market"
)

func sampleMatch() *market.PatternMatch {
	return &market.PatternMatch{
		ID:          7,
		Instrument:  "EURUSD",
		PatternID:   4,
		PatternName: "band_breakout",
		Timeframe:   market.Timeframe5m,
		Confidence:  65,
		Direction:   market.DirectionBuy,
		EntryPrice:  150.50,
		StopLoss:    150.00,
		TakeProfit:  151.25,
	}
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
	}))
	defer server.Close()

	n := NewTelegramNotifier(TelegramConfig{
		Enabled:  true,
		BotToken: "token123",
		ChatID:   "chat456",
		BaseURL:  server.URL,
	})
	if !n.IsEnabled() {
		t.Fatal("notifier should be enabled")
	}
	if err := n.Send(context.Background(), sampleMatch()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["chat_id"] != "chat456" {
		t.Errorf("chat_id = %v", gotPayload["chat_id"])
	}
	text, _ := gotPayload["text"].(string)
	if !strings.Contains(text, "band_breakout") || !strings.Contains(text, "150.50000") {
		t.Errorf("message missing pattern or entry: %q", text)
	}
}

func TestTelegramDisabledWithoutCredentials(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if n.IsEnabled() {
		t.Error("notifier must stay disabled without token and chat id")
	}
}

func TestWebhookSend(t *testing.T) {
	var got market.PatternMatch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{Enabled: true, URL: server.URL})
	if err := n.Send(context.Background(), sampleMatch()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.PatternName != "band_breakout" || got.EntryPrice != 150.50 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestWebhookSendReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{Enabled: true, URL: server.URL})
	if err := n.Send(context.Background(), sampleMatch()); err == nil {
		t.Error("expected error for 500 response")
	}
}
