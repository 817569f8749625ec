package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	notifications map[string][]Notification // userID -> notifications
	mu            sync.RWMutex
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string][]Notification),
	}
}

func (s *MemoryStorage) Create(ctx context.Context, notif Notification) error {
	if notif.ID == "" {
		return errors.New("notification ID is required")
	}
	if notif.UserID == "" {
		return errors.New("user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[notif.UserID] {
		if n.ID == notif.ID {
			return fmt.Errorf("%w: %s", ErrNotificationExists, notif.ID)
		}
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}

	s.notifications[notif.UserID] = append(s.notifications[notif.UserID], copyNotification(notif))
	return nil
}

func (s *MemoryStorage) Update(ctx context.Context, notif Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[notif.UserID]
	for i := range list {
		if list[i].ID == notif.ID {
			list[i] = copyNotification(notif)
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (s *MemoryStorage) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications[userID] {
		if n.ID == notifID {
			// Return a copy to prevent external mutation of stored data
			notif := copyNotification(n)
			return &notif, nil
		}
	}

	return nil, ErrNotificationNotFound
}

func (s *MemoryStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]Notification, 0)
	for _, n := range s.notifications[userID] {
		if opts.match(n) {
			filtered = append(filtered, copyNotification(n))
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end], nil
}

func (s *MemoryStorage) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type ref struct {
		userID string
		idx    int
	}
	var due []ref
	for userID, list := range s.notifications {
		for i := range list {
			if list[i].IsDue(now) {
				due = append(due, ref{userID: userID, idx: i})
			}
		}
	}

	// Oldest schedule first, then by ID for stable ordering.
	sort.Slice(due, func(i, j int) bool {
		a := s.notifications[due[i].userID][due[i].idx]
		b := s.notifications[due[j].userID][due[j].idx]
		if !a.ScheduledAt.Equal(*b.ScheduledAt) {
			return a.ScheduledAt.Before(*b.ScheduledAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	until := now.Add(lease)
	claimed := make([]Notification, 0, len(due))
	for _, r := range due {
		n := &s.notifications[r.userID][r.idx]
		leased := until
		n.LeasedUntil = &leased
		claimed = append(claimed, copyNotification(*n))
	}
	return claimed, nil
}

func copyNotification(n Notification) Notification {
	out := n
	out.Variables = cloneStrings(n.Variables)
	out.Metadata = cloneStrings(n.Metadata)
	if n.ScheduledAt != nil {
		t := *n.ScheduledAt
		out.ScheduledAt = &t
	}
	if n.SentAt != nil {
		t := *n.SentAt
		out.SentAt = &t
	}
	if n.LeasedUntil != nil {
		t := *n.LeasedUntil
		out.LeasedUntil = &t
	}
	return out
}
