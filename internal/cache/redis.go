package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a Redis server. Keys are namespaced with
// Prefix so several gateways can share one database.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// NewRedisStore dials addr and verifies the connection with PING.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{Client: client, Prefix: prefix}, nil
}

func (r *RedisStore) key(k string) string { return r.Prefix + k }

// Get returns the stored value or ErrMiss.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// Set stores val with the given ttl (0 = no expiry).
func (r *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.Client.Set(ctx, r.key(key), val, ttl).Err()
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.key(key)).Err()
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error { return r.Client.Close() }
