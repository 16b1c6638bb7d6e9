package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/fincore/keystore"
)

func TestGetSetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, keystore.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	removed, err := s.Delete(ctx, "k", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, keystore.ErrNotFound)
}

func TestExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 20*time.Millisecond))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	time.Sleep(30 * time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, keystore.ErrNotFound)
}

func TestIncrement(t *testing.T) {
	s := New()
	ctx := context.Background()

	n, err := s.Increment(ctx, "counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Increment(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestIncrementWithTTLSetsTTLOnFirstWriteOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.IncrementWithTTL(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)

	ttl, err := s.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	// Second increment must not extend the window.
	time.Sleep(10 * time.Millisecond)
	_, err = s.IncrementWithTTL(ctx, "counter", 1, time.Hour)
	require.NoError(t, err)

	ttl, err = s.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Less(t, ttl, time.Minute+time.Second)
}

func TestTTLSentinels(t *testing.T) {
	s := New()
	ctx := context.Background()

	ttl, err := s.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, -2*time.Second, ttl)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	ttl, err = s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, -1*time.Second, ttl)
}

func TestExpire(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.Expire(ctx, "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	ok, err = s.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}

func TestHashOperations(t *testing.T) {
	s := New()
	ctx := context.Background()

	fields, err := s.HashGetAll(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, fields)

	require.NoError(t, s.HashSet(ctx, "bucket", map[string]string{
		"tokens":      "9.5",
		"last_refill": "1700000000",
	}))
	require.NoError(t, s.HashSet(ctx, "bucket", map[string]string{
		"tokens": "8.5",
	}))

	fields, err = s.HashGetAll(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, "8.5", fields["tokens"])
	assert.Equal(t, "1700000000", fields["last_refill"])
}

func TestSortedSetOperations(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "z", 3, "c"))
	require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 2, "b"))

	count, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	members, err := s.ZRangeWithScores(ctx, "z", 0, 0)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "a", members[0].Member)
	assert.Equal(t, float64(1), members[0].Score)

	members, err = s.ZRangeWithScores(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	removed, err := s.ZRemRangeByScore(ctx, "z", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err = s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestKeysPattern(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "cache:t1:a", "1", 0))
	require.NoError(t, s.Set(ctx, "cache:t1:b", "2", 0))
	require.NoError(t, s.Set(ctx, "cache:t2:a", "3", 0))

	keys, err := s.Keys(ctx, "cache:t1:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache:t1:a", "cache:t1:b"}, keys)

	keys, err = s.Keys(ctx, "cache:*")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}
