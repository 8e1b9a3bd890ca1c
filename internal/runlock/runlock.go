package runlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a best-effort run-level mutex backed by Redis SETNX. It keeps
// overlapping sync triggers from racing on the same users; the TTL bounds how
// long a crashed holder can block the next run. With a nil client every
// Acquire succeeds (single-instance deployments without Redis).
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func New(client *redis.Client, key string, ttl time.Duration) *Lock {
	if key == "" {
		key = "lock:user-sync"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire tries to take the lock. It returns false when another run holds it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, l.key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

// Release drops the lock. Safe to call when the lock already expired.
func (l *Lock) Release(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Del(ctx, l.key).Err()
}
