package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStoreTimeout bounds every counter round trip. A store that
// cannot answer within it is treated as unreachable.
const DefaultStoreTimeout = 200 * time.Millisecond

// RedisStore is a CounterStore backed by a shared Redis instance. It is
// the single synchronization point between server processes: all
// contention resolves through Redis' atomic INCR.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore wraps a Redis client. timeout bounds each operation;
// zero selects DefaultStoreTimeout.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &RedisStore{client: client, timeout: timeout}
}

// Incr atomically increments the counter and sets the bucket expiry on
// the first write. The expiry is issued as a second command; INCR alone
// carries the atomicity requirement, and a failed EXPIRE is reported as
// unavailability so the limiter fails open.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}

	if v == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("setting expiry on %s: %w", key, err)
		}
	}

	return v, nil
}
