package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a notifications.Locker backed by SET NX PX.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

var _ notifications.Locker = (*Locker)(nil)

// NewLocker creates a Locker. Keys are stored as "<prefix>:<key>"; the prefix
// defaults to "notify:lock".
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	if prefix == "" {
		prefix = "notify:lock"
	}
	return &Locker{client: client, prefix: prefix}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (notifications.ReleaseFunc, bool, error) {
	fullKey := l.prefix + ":" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("releasing lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
