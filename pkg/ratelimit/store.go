package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the shared atomic counter collaborator.
//
// Incr must increment the counter at key by one and return the
// post-increment value as a single atomic operation: two concurrent
// increments of the same key never observe the same value. When the
// returned value is 1 the implementation must arrange for the key to
// expire after ttl so buckets clean themselves up.
//
// Any returned error is treated as store unavailability by the limiter
// and converted into an allow.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
