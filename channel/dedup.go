package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beadwright/orchestrator/ids"
)

// DedupCache maps an idempotency key to the message id it first resolved
// to, for the dedup TTL window.
type DedupCache interface {
	Get(ctx context.Context, key string) (ids.ID, bool, error)
	Put(ctx context.Context, key string, id ids.ID, ttl time.Duration) error
	// Delete removes a single key, used to undo a Put when the caller
	// that registered it fails a later step and must roll back.
	Delete(ctx context.Context, key string) error
	// Cleanup removes entries older than ttl. Backends with native
	// expiry may implement this as a no-op.
	Cleanup(ctx context.Context, ttl time.Duration) error
}

type dedupEntry struct {
	id       ids.ID
	cachedAt time.Time
	ttl      time.Duration
}

// MemDedupCache is an in-process, mutex-guarded dedup cache. Get ignores
// entries older than their TTL, but they stay in memory until Cleanup
// removes them, so Cleanup must be invoked periodically.
type MemDedupCache struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
}

// NewMemDedupCache constructs an empty in-memory dedup cache.
func NewMemDedupCache() *MemDedupCache {
	return &MemDedupCache{entries: make(map[string]dedupEntry)}
}

func (c *MemDedupCache) Get(_ context.Context, key string) (ids.ID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return ids.ID(""), false, nil
	}
	if entry.ttl > 0 && time.Since(entry.cachedAt) >= entry.ttl {
		return ids.ID(""), false, nil
	}
	return entry.id, true, nil
}

func (c *MemDedupCache) Put(_ context.Context, key string, id ids.ID, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = dedupEntry{id: id, cachedAt: time.Now(), ttl: ttl}
	return nil
}

func (c *MemDedupCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemDedupCache) Cleanup(_ context.Context, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	for key, entry := range c.entries {
		if entry.cachedAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
	return nil
}

// RedisDedupCache shares dedup state across processes via Redis, relying
// on Redis's own key expiry for the TTL window rather than a manual sweep.
type RedisDedupCache struct {
	client *redis.Client
	prefix string
}

// NewRedisDedupCache wraps an existing *redis.Client. prefix namespaces
// keys (e.g. "orchestrator:dedup:").
func NewRedisDedupCache(client *redis.Client, prefix string) *RedisDedupCache {
	return &RedisDedupCache{client: client, prefix: prefix}
}

func (c *RedisDedupCache) key(key string) string {
	return c.prefix + key
}

func (c *RedisDedupCache) Get(ctx context.Context, key string) (ids.ID, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ids.ID(""), false, nil
	}
	if err != nil {
		return ids.ID(""), false, err
	}
	return ids.ID(val), true, nil
}

func (c *RedisDedupCache) Put(ctx context.Context, key string, id ids.ID, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), id.String(), ttl).Err()
}

func (c *RedisDedupCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Cleanup is a no-op: Redis expires keys on its own via the TTL passed to Put.
func (c *RedisDedupCache) Cleanup(context.Context, time.Duration) error {
	return nil
}
