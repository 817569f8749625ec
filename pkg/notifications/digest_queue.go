package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// DigestEntry is one notification waiting for the user's next digest.
type DigestEntry struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Template  string            `json:"template"`
	Priority  Priority          `json:"priority"`
	Variables map[string]string `json:"variables,omitempty"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// DigestQueue holds pending digest entries per user.
type DigestQueue interface {
	Append(ctx context.Context, entry DigestEntry) error

	// PendingUsers returns users having at least one entry queued before queuedBefore.
	PendingUsers(ctx context.Context, queuedBefore time.Time, limit int) ([]string, error)

	// Entries returns a user's entries, oldest first.
	Entries(ctx context.Context, userID string) ([]DigestEntry, error)

	// Delete removes the given entries. Unknown IDs are ignored, so entries
	// appended after Entries was read survive.
	Delete(ctx context.Context, userID string, ids ...string) error
}

// MemoryDigestQueue is an in-memory DigestQueue.
type MemoryDigestQueue struct {
	entries map[string][]DigestEntry // userID -> entries
	mu      sync.RWMutex
}

func NewMemoryDigestQueue() *MemoryDigestQueue {
	return &MemoryDigestQueue{entries: make(map[string][]DigestEntry)}
}

func (q *MemoryDigestQueue) Append(ctx context.Context, entry DigestEntry) error {
	if entry.ID == "" || entry.UserID == "" {
		return errors.New("digest entry ID and user ID are required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entry.Variables = cloneStrings(entry.Variables)
	q.entries[entry.UserID] = append(q.entries[entry.UserID], entry)
	return nil
}

func (q *MemoryDigestQueue) PendingUsers(ctx context.Context, queuedBefore time.Time, limit int) ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	users := make([]string, 0, len(q.entries))
	for userID, list := range q.entries {
		for _, e := range list {
			if !e.QueuedAt.After(queuedBefore) {
				users = append(users, userID)
				break
			}
		}
	}
	sort.Strings(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (q *MemoryDigestQueue) Entries(ctx context.Context, userID string) ([]DigestEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]DigestEntry, 0, len(q.entries[userID]))
	for _, e := range q.entries[userID] {
		e.Variables = cloneStrings(e.Variables)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out, nil
}

func (q *MemoryDigestQueue) Delete(ctx context.Context, userID string, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idMap := make(map[string]bool, len(ids))
	for _, id := range ids {
		idMap[id] = true
	}

	var kept []DigestEntry
	for _, e := range q.entries[userID] {
		if !idMap[e.ID] {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(q.entries, userID)
		return nil
	}
	q.entries[userID] = kept
	return nil
}
