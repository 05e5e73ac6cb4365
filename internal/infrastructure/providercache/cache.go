// Package providercache memoizes provider responses (feeds, listing pages,
// search payloads) for a bounded time so repeated runs do not hammer the
// upstream APIs.
package providercache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("providercache: miss")

// Cache stores opaque payloads with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process LRU cache. Entries expire after the smaller of the
// per-call TTL and the cache-wide TTL.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemory creates a bounded in-memory cache.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		now: time.Now,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		m.lru.Remove(key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.lru.Add(key, entry)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Redis stores payloads in Redis under a common key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions describes the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("providercache: ping redis %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, prefix: opts.Prefix}, nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("providercache: get %s: %w", key, err)
	}
	return value, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("providercache: set %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop never stores anything.
type Nop struct{}

// Get implements Cache.
func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

// Set implements Cache.
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Fetch returns the cached payload for key or calls load, caching its result
// for ttl. Cache read and write failures fall through to load.
func Fetch(ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return load(ctx)
	}
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}
