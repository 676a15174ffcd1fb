package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"testrunner/internal/model"
)

// RedisHot is the optional networked hot tier ("fast, in-process
// or networked KV"), grounded on the go-redis client wiring in the
// itsneelabh-gomind example's orchestration/redis_execution_store.go:
// redis.ParseURL with an Addr fallback, JSON-serialized values, and
// redis.Nil translated to a plain cache miss rather than an error.
type RedisHot struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisHot connects to addr (host:port or a redis:// URL) and verifies
// the connection with a bounded ping before returning.
func NewRedisHot(ctx context.Context, addr, keyPrefix string) (*RedisHot, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed at %s: %w", addr, err)
	}
	if keyPrefix == "" {
		keyPrefix = "selector-cache:"
	}
	return &RedisHot{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RedisHot) key(k string) string {
	return r.keyPrefix + k
}

func (r *RedisHot) Get(ctx context.Context, key string) (model.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("redis decode: %w", err)
	}
	return entry, true, nil
}

func (r *RedisHot) Set(ctx context.Context, key string, entry model.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisHot) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisHot) Close() error {
	return r.client.Close()
}
