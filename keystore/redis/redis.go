// Package redis provides a Redis implementation of keystore.Store.
// Increment-with-expiry is done via a Lua script so the first writer in a
// window atomically owns the key's TTL; everything else maps directly to
// single-key Redis commands, which are atomic on their own.
package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/centsible/fincore/keystore"
)

// Store implements keystore.Store using Redis.
type Store struct {
	client     redis.UniversalClient
	incrExpire *redis.Script
}

// New creates a new Redis store adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	return &Store{
		client: client,
		incrExpire: redis.NewScript(`
			local count = redis.call('INCRBY', KEYS[1], ARGV[1])
			if count == tonumber(ARGV[1]) and tonumber(ARGV[2]) > 0 then
				redis.call('PEXPIRE', KEYS[1], ARGV[2])
			end
			return count
		`),
	}, nil
}

// wrap converts transport-level failures into keystore.ErrUnavailable so
// callers can apply their fail-open / fail-to-miss policy on one sentinel.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, keystore.ErrUnavailable, err)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", keystore.ErrNotFound
	}
	if err != nil {
		return "", wrap("get", err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, wrap("delete", err)
	}
	return removed, nil
}

func (s *Store) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	val, err := s.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, wrap("increment", err)
	}
	return val, nil
}

func (s *Store) IncrementWithTTL(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	res, err := s.incrExpire.Run(ctx, s.client,
		[]string{key},
		strconv.FormatInt(amount, 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Result()
	if err != nil {
		return 0, wrap("increment_with_ttl", err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("increment_with_ttl: unexpected script result %T", res)
	}
	return count, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, wrap("expire", err)
	}
	return ok, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrap("ttl", err)
	}
	return ttl, nil
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("hash_get_all", err)
	}
	return fields, nil
}

func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	flat := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	if err := s.client.HSet(ctx, key, flat...).Err(); err != nil {
		return wrap("hash_set", err)
	}
	return nil
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return wrap("zadd", err)
	}
	return nil
}

func (s *Store) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]keystore.Member, error) {
	zs, err := s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap("zrange", err)
	}

	members := make([]keystore.Member, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		members = append(members, keystore.Member{Score: z.Score, Member: member})
	}
	return members, nil
}

func (s *Store) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, wrap("zremrangebyscore", err)
	}
	return removed, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrap("zcard", err)
	}
	return count, nil
}

// Keys scans the keyspace with SCAN rather than KEYS so administrative
// clears do not block the server. Still O(total keys); avoid calling it
// at high frequency on a large keyspace.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, wrap("keys", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
