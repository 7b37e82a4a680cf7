// Package lock provides the per-correlation mutual-exclusion guard used to
// serialize callback reconciliation for a single payment.
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements the guard with SET NX and a TTL so a crashed holder
// cannot wedge a correlation ID forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (bool, error) {
	return l.client.SetNX(ctx, key, "1", l.ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	l.client.Del(ctx, key)
}
