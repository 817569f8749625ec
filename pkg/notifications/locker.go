package notifications

import (
	"context"
	"sync"
	"time"
)

// ReleaseFunc releases a lock acquired with Locker.TryLock.
type ReleaseFunc func(ctx context.Context) error

// Locker provides short-lived exclusive locks keyed by string.
type Locker interface {
	// TryLock acquires key for ttl without blocking. ok is false if another
	// holder owns the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	held map[string]time.Time // key -> expiry
	now  func() time.Time
	mu   sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && exp.After(now) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Only release our own acquisition.
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}
