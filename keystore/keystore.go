// Package keystore defines the keyed-store contract the rate limiting,
// caching, and webhook dedup layers are built on. Implementations live in
// the redis and memory subpackages.
//
// All operations are atomic at the single-key level. Nothing in this
// repository assumes multi-key transactions; every higher-level component
// composes single-key primitives only, which is what makes the design safe
// to run across many API worker processes without a distributed lock.
package keystore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when the backing store cannot be reached,
	// either because the transport failed or because a circuit breaker is
	// refusing calls. Callers decide per call site whether to fail open
	// (rate limiting) or degrade to a miss (caching).
	ErrUnavailable = errors.New("keystore: backing store unavailable")

	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("keystore: key not found")
)

// Member is one sorted-set member with its score.
type Member struct {
	Score  float64
	Member string
}

// Store is the keyed-store contract. TTL semantics follow Redis: a zero
// ttl on Set means no expiration, TTL returns a negative duration for
// missing keys or keys without an expiry.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key with the given ttl (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Increment atomically adds amount to the integer at key, creating it
	// at zero first, and returns the new value.
	Increment(ctx context.Context, key string, amount int64) (int64, error)

	// IncrementWithTTL behaves like Increment but sets ttl on the key when
	// this call created it (new value == amount). The create-and-expire is
	// atomic so the first writer in a window always owns the expiry.
	IncrementWithTTL(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)

	// Expire sets the ttl on an existing key. Reports whether the key exists.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining time to live of a key. Negative if the key
	// is missing or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// HashGetAll returns all fields of the hash at key. Missing keys yield
	// an empty map, not an error.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashSet writes the given fields into the hash at key.
	HashSet(ctx context.Context, key string, fields map[string]string) error

	// ZAdd adds a member with a score to the sorted set at key.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRangeWithScores returns members in [start, stop] by rank, ascending
	// by score. Use (0, 0) for the oldest member.
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error)

	// ZRemRangeByScore removes members with scores in [min, max] and
	// returns how many were removed.
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)

	// ZCard returns the cardinality of the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// Keys returns all keys matching the glob pattern. This is a full
	// keyspace scan on most backends; it exists for administrative resets
	// and namespace clears, not for request paths.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
