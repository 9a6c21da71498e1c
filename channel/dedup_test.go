package channel

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/ids"
)

func TestMemDedupCache_PutThenGet(t *testing.T) {
	cache := NewMemDedupCache()
	id := ids.New()

	require.NoError(t, cache.Put(context.Background(), "key-1", id, time.Hour))
	got, ok, err := cache.Get(context.Background(), "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestMemDedupCache_GetMissingKey(t *testing.T) {
	cache := NewMemDedupCache()
	_, ok, err := cache.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDedupCache_EntryExpiresAfterTTL(t *testing.T) {
	cache := NewMemDedupCache()
	require.NoError(t, cache.Put(context.Background(), "key-1", ids.New(), 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)
	_, ok, err := cache.Get(context.Background(), "key-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDedupCache_CleanupRemovesOldEntries(t *testing.T) {
	cache := NewMemDedupCache()
	require.NoError(t, cache.Put(context.Background(), "stale", ids.New(), time.Hour))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cache.Cleanup(context.Background(), time.Millisecond))
	require.Empty(t, cache.entries)
}

func newTestRedisCache(t *testing.T) *RedisDedupCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDedupCache(client, "orchestrator:dedup:")
}

func TestRedisDedupCache_PutThenGet(t *testing.T) {
	cache := newTestRedisCache(t)
	id := ids.New()

	require.NoError(t, cache.Put(context.Background(), "key-1", id, time.Hour))
	got, ok, err := cache.Get(context.Background(), "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestRedisDedupCache_GetMissingKey(t *testing.T) {
	cache := newTestRedisCache(t)
	_, ok, err := cache.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}
