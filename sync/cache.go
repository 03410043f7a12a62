package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
)

// Cache stores string values by key. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value for key and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Wrap returns the cached value for key, or calls producer and caches its result.
// Values are stored as JSON.
func Wrap[T any](ctx context.Context, cache Cache, key string, producer func(context.Context) (T, error)) (T, error) {
	var result T
	if raw, found, err := cache.Get(ctx, key); err == nil && found {
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			return result, nil
		}
	}
	result, err := producer(ctx)
	if err != nil {
		return result, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return result, fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	if err := cache.Set(ctx, key, string(raw)); err != nil {
		return result, fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return result, nil
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	entries gosync.Map // map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string) error {
	c.entries.Store(key, value)
	return nil
}

// RemoteIDCacheKey is the cache key holding the remote id created for a platform entity.
func RemoteIDCacheKey(resource Resource, entityID string) string {
	return string(resource) + ":" + entityID
}

// StateStore persists small pieces of connector state between runs.
type StateStore interface {
	// Get returns "" for a key that was never set.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStateStore is a process-local StateStore.
type MemoryStateStore struct {
	mu     gosync.Mutex
	values map[string]string
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string]string)}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *MemoryStateStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
