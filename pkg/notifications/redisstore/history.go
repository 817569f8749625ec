package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// History is a DeliveryHistory on Redis sorted sets: one key per
// user/channel/template, scored by delivery time in milliseconds.
type History struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var _ notifications.DeliveryHistory = (*History)(nil)

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithHistoryPrefix sets the key prefix. Defaults to "notify:history".
func WithHistoryPrefix(prefix string) HistoryOption {
	return func(h *History) {
		if prefix != "" {
			h.prefix = prefix
		}
	}
}

// WithRetention sets how long deliveries are kept. Defaults to 24h.
func WithRetention(d time.Duration) HistoryOption {
	return func(h *History) {
		if d > 0 {
			h.retention = d
		}
	}
}

// WithHistoryClock overrides the time source used for pruning and windows.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHistory(client redis.UniversalClient, opts ...HistoryOption) *History {
	h := &History{
		client:    client,
		prefix:    "notify:history",
		retention: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *History) key(userID string, ch notifications.Channel, template string) string {
	return fmt.Sprintf("%s:%s:%s:%s", h.prefix, userID, ch, template)
}

func (h *History) RecordDelivery(ctx context.Context, userID string, ch notifications.Channel, template string, at time.Time) error {
	key := h.key(userID, ch, template)
	cutoff := h.now().Add(-h.retention).UnixMilli()

	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Unique members keep same-millisecond deliveries apart.
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, key, h.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	return nil
}

func (h *History) GetRecentDeliveries(ctx context.Context, userID string, ch notifications.Channel, template string, window time.Duration) ([]time.Time, error) {
	minScore := h.now().Add(-window).UnixMilli()

	res, err := h.client.ZRangeByScoreWithScores(ctx, h.key(userID, ch, template), &redis.ZRangeBy{
		Min: strconv.FormatInt(minScore, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recent deliveries: %w", err)
	}

	out := make([]time.Time, 0, len(res))
	for _, z := range res {
		out = append(out, time.UnixMilli(int64(z.Score)).UTC())
	}
	return out, nil
}
