package notifications

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DeliveryHistory records successful deliveries for throttling decisions.
type DeliveryHistory interface {
	RecordDelivery(ctx context.Context, userID string, ch Channel, template string, at time.Time) error

	// GetRecentDeliveries returns delivery times within window of now, oldest first.
	GetRecentDeliveries(ctx context.Context, userID string, ch Channel, template string, window time.Duration) ([]time.Time, error)
}

// MemoryHistory is an in-memory DeliveryHistory.
type MemoryHistory struct {
	entries   map[historyKey][]time.Time
	retention time.Duration
	now       func() time.Time
	mu        sync.RWMutex
}

type historyKey struct {
	userID   string
	channel  Channel
	template string
}

// MemoryHistoryOption configures a MemoryHistory.
type MemoryHistoryOption func(*MemoryHistory)

// WithHistoryRetention sets how long records are kept. Defaults to 24h.
func WithHistoryRetention(d time.Duration) MemoryHistoryOption {
	return func(h *MemoryHistory) {
		if d > 0 {
			h.retention = d
		}
	}
}

// WithHistoryClock overrides the time source.
func WithHistoryClock(now func() time.Time) MemoryHistoryOption {
	return func(h *MemoryHistory) {
		if now != nil {
			h.now = now
		}
	}
}

func NewMemoryHistory(opts ...MemoryHistoryOption) *MemoryHistory {
	h := &MemoryHistory{
		entries:   make(map[historyKey][]time.Time),
		retention: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MemoryHistory) RecordDelivery(ctx context.Context, userID string, ch Channel, template string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey{userID: userID, channel: ch, template: template}
	cutoff := h.now().Add(-h.retention)

	kept := h.entries[key][:0]
	for _, t := range h.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })
	h.entries[key] = kept
	return nil
}

func (h *MemoryHistory) GetRecentDeliveries(ctx context.Context, userID string, ch Channel, template string, window time.Duration) ([]time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := h.now().Add(-window)
	var out []time.Time
	for _, t := range h.entries[historyKey{userID: userID, channel: ch, template: template}] {
		if !t.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}
