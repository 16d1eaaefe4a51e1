package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pattern-sentinel/internal/market"
)

// SendHistoryKey is the sorted set holding recent notification sends,
// scored by send time. Old entries are trimmed on every write.
const SendHistoryKey = "sentinel:notifications:sent"

// sendHistoryRetention bounds how far back the history is kept; it must
// cover the largest configured rate window.
const sendHistoryRetention = 24 * time.Hour

// RedisSendHistory records notification sends in redis so the dispatch
// rate limit survives restarts.
type RedisSendHistory struct {
	client *redis.Client
}

// NewRedisSendHistory creates a redis-backed send history
func NewRedisSendHistory(client *redis.Client) *RedisSendHistory {
	return &RedisSendHistory{client: client}
}

// RecordSend appends one send to the history and trims expired entries
func (h *RedisSendHistory) RecordSend(ctx context.Context, match market.PatternMatch, at time.Time) error {
	member := fmt.Sprintf("%s:%d:%s:%s", match.Instrument, match.PatternID, match.Timeframe, uuid.NewString())
	if err := h.client.ZAdd(ctx, SendHistoryKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("recording send: %w", err)
	}

	cutoff := at.Add(-sendHistoryRetention).UnixMilli()
	if err := h.client.ZRemRangeByScore(ctx, SendHistoryKey, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
		return fmt.Errorf("trimming send history: %w", err)
	}
	return nil
}

// CountSince returns the number of sends recorded after the given time
func (h *RedisSendHistory) CountSince(ctx context.Context, since time.Time) (int, error) {
	n, err := h.client.ZCount(ctx, SendHistoryKey,
		fmt.Sprintf("%d", since.UnixMilli()), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting send history: %w", err)
	}
	return int(n), nil
}
