// Package cache is the best-effort key-value layer in front of the drift
// monitor. Nothing may depend on it for correctness: a failing cache is
// treated as a miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// Cache is a key-value store with per-entry TTL. Get reports ok=false on a
// miss; err is reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Key builds a cache key from the user, facet and date bucket.
func Key(prefix, facet, userID string, bucket time.Time) string {
	if prefix == "" {
		prefix = "tether"
	}
	return strings.Join([]string{prefix, facet, userID, bucket.UTC().Format("2006-01-02")}, ":")
}

// Fetch returns the cached value for key, or computes, stores and returns
// it. Cache errors are logged and fall through to compute; compute errors
// are returned and never cached.
func Fetch[T any](ctx context.Context, c Cache, log *zap.Logger, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if c != nil {
		data, ok, err := c.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			var v T
			err := json.Unmarshal(data, &v)
			if err == nil {
				return v, nil
			}
			log.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}

	if c != nil && ttl > 0 {
		data, err := json.Marshal(v)
		if err != nil {
			log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
			return v, nil
		}
		if err := c.Set(ctx, key, data, ttl); err != nil {
			log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

// memoryCapacity bounds the in-process cache; the least recently used
// entry is evicted past it.
const memoryCapacity = 10_000

// Memory is an in-process Cache on ttlcache. Hits do not extend an entry's
// TTL, and expired entries read as misses until evicted.
type Memory struct {
	items *ttlcache.Cache[string, []byte]
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: ttlcache.New[string, []byte](
		ttlcache.WithCapacity[string, []byte](memoryCapacity),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item := m.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("memory cache: ttl must be positive")
	}
	m.items.Set(key, append([]byte(nil), val...), ttl)
	return nil
}

// Len drops expired entries and returns the number left.
func (m *Memory) Len() int {
	m.items.DeleteExpired()
	return m.items.Len()
}

// Nop never stores anything; every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
