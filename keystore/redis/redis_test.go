package redis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/fincore/keystore"
)

// setupTestRedis creates a Redis client for testing.
// Requires Redis running on localhost:6379.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // test database
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestGetSetDelete(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, keystore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	removed, err := store.Delete(ctx, "k", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestIncrementWithTTLAtomicity(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.IncrementWithTTL(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl, err := store.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	// Only the first writer owns the expiry.
	n, err = store.IncrementWithTTL(ctx, "counter", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err = store.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestHashRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.HashSet(ctx, "bucket", map[string]string{
		"tokens":      "9.5",
		"last_refill": "1700000000.25",
	}))

	fields, err := store.HashGetAll(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, "9.5", fields["tokens"])
	assert.Equal(t, "1700000000.25", fields["last_refill"])
}

func TestSortedSetOperations(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.ZAdd(ctx, "z", 100, "a"))
	require.NoError(t, store.ZAdd(ctx, "z", 200, "b"))
	require.NoError(t, store.ZAdd(ctx, "z", 300, "c"))

	count, err := store.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	oldest, err := store.ZRangeWithScores(ctx, "z", 0, 0)
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "a", oldest[0].Member)

	// -inf lower bound, the shape the sliding window eviction uses.
	removed, err := store.ZRemRangeByScore(ctx, "z", math.Inf(-1), 250)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestKeysScan(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cache:t1:a", "1", time.Minute))
	require.NoError(t, store.Set(ctx, "cache:t1:b", "2", time.Minute))
	require.NoError(t, store.Set(ctx, "cache:t2:a", "3", time.Minute))

	keys, err := store.Keys(ctx, "cache:t1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
