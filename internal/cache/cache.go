// Package cache provides a small TTL key/value store used for short-lived
// gateway state: session QR codes and logged-in user profiles.
//
// Two implementations are available:
//   - MemoryStore: process-local map with lazy expiry and opportunistic GC.
//   - RedisStore: shared store backed by github.com/redis/go-redis/v9.
//
// Both are safe for concurrent use.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the contract shared by the cache backends. A ttl <= 0 stores the
// value without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
