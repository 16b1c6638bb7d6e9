// Package cache provides a tenant-namespaced caching layer over a
// keystore.Store with JSON serialization.
//
// Tenant isolation is structural: the tenant ID is baked into every
// physical key, so a tenant can never read another tenant's entry even
// with a guessed key. There is no filter to bypass.
//
// The cache is a performance layer, never a correctness dependency.
// Every backing-store failure degrades to miss behavior: Get reports
// not-found, Set reports false, and the caller recomputes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/centsible/fincore/keystore"
	"github.com/centsible/fincore/logging"
)

const (
	// DefaultNamespace is prepended to every cache key.
	DefaultNamespace = "cache"

	// DefaultTTL applies when Set is called with a zero TTL.
	DefaultTTL = 5 * time.Minute

	// maxRawKeyLen is the longest raw key stored verbatim; anything
	// longer is SHA-256 hashed to bound physical key length.
	maxRawKeyLen = 200
)

// Config holds cache service configuration.
type Config struct {
	// Store is the backing keyed store (required).
	Store keystore.Store

	// Namespace overrides DefaultNamespace.
	Namespace string

	// DefaultTTL overrides the package default for zero-TTL sets.
	DefaultTTL time.Duration

	// Logger is used for structured logging (default: NoopLogger).
	Logger logging.Logger

	// Metrics tracks hits, misses, and degraded operations
	// (default: NoopMetrics).
	Metrics Metrics
}

// ErrStoreRequired is returned by New when no keystore is provided.
var ErrStoreRequired = errors.New("cache: keystore is required")

// Service is a tenant-aware cache over a keyed store.
type Service struct {
	store      keystore.Store
	namespace  string
	defaultTTL time.Duration
	logger     logging.Logger
	metrics    Metrics
}

// New creates a new cache service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoopMetrics{}
	}

	return &Service{
		store:      cfg.Store,
		namespace:  cfg.Namespace,
		defaultTTL: cfg.DefaultTTL,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// key builds the physical key {namespace}:{tenant}:{key}, hashing raw
// keys longer than 200 bytes.
func (s *Service) key(tenantID, raw string) string {
	if len(raw) > maxRawKeyLen {
		sum := sha256.Sum256([]byte(raw))
		raw = hex.EncodeToString(sum[:])
	}
	return s.namespace + ":" + tenantID + ":" + raw
}

// Get retrieves and unmarshals the entry at key into dest. Reports
// whether a value was found; store failures surface as a miss.
func (s *Service) Get(ctx context.Context, tenantID, key string, dest interface{}) bool {
	raw, err := s.store.Get(ctx, s.key(tenantID, key))
	if errors.Is(err, keystore.ErrNotFound) {
		s.metrics.RecordMiss(s.namespace)
		return false
	}
	if err != nil {
		s.degrade("get", err)
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.degrade("get", err)
		return false
	}
	s.metrics.RecordHit(s.namespace)
	return true
}

// Set marshals value and stores it under key. A zero ttl uses the
// configured default. Reports whether the write happened.
func (s *Service) Set(ctx context.Context, tenantID, key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.degrade("set", err)
		return false
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.store.Set(ctx, s.key(tenantID, key), string(data), ttl); err != nil {
		s.degrade("set", err)
		return false
	}
	return true
}

// Delete removes the given keys for the tenant and returns how many existed.
func (s *Service) Delete(ctx context.Context, tenantID string, keys ...string) int64 {
	physical := make([]string, len(keys))
	for i, k := range keys {
		physical[i] = s.key(tenantID, k)
	}
	removed, err := s.store.Delete(ctx, physical...)
	if err != nil {
		s.degrade("delete", err)
		return 0
	}
	return removed
}

// GetOrSet returns the cached entry at key, or invokes factory on a
// miss, caches the result, and unmarshals it into dest.
//
// There is no single-flight deduplication: two concurrent misses may
// both invoke factory. Factories are assumed idempotent and cheap
// enough for that to be acceptable.
func (s *Service) GetOrSet(ctx context.Context, tenantID, key string, dest interface{}, ttl time.Duration,
	factory func(context.Context) (interface{}, error)) error {

	if s.Get(ctx, tenantID, key, dest) {
		return nil
	}

	value, err := factory(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return err
	}

	// Best effort; a failed write just means the next caller recomputes.
	s.Set(ctx, tenantID, key, value, ttl)
	return nil
}

// MGet retrieves multiple keys, returning raw JSON for each key that was
// found. Missing or failed keys are simply absent from the result.
func (s *Service) MGet(ctx context.Context, tenantID string, keys ...string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		raw, err := s.store.Get(ctx, s.key(tenantID, k))
		if errors.Is(err, keystore.ErrNotFound) {
			s.metrics.RecordMiss(s.namespace)
			continue
		}
		if err != nil {
			s.degrade("mget", err)
			continue
		}
		s.metrics.RecordHit(s.namespace)
		out[k] = json.RawMessage(raw)
	}
	return out
}

// MSet stores multiple key/value pairs with a shared TTL. Reports how
// many writes succeeded.
func (s *Service) MSet(ctx context.Context, tenantID string, values map[string]interface{}, ttl time.Duration) int {
	var stored int
	for k, v := range values {
		if s.Set(ctx, tenantID, k, v, ttl) {
			stored++
		}
	}
	return stored
}

// Increment atomically adds amount to the counter at key, creating it
// with the default TTL on first write. Reports the new value; a store
// failure reports (0, false).
func (s *Service) Increment(ctx context.Context, tenantID, key string, amount int64) (int64, bool) {
	val, err := s.store.IncrementWithTTL(ctx, s.key(tenantID, key), amount, s.defaultTTL)
	if err != nil {
		s.degrade("increment", err)
		return 0, false
	}
	return val, true
}

// ClearTenant removes every cache entry for one tenant. The underlying
// scan is O(number of matching keys); do not call this at high frequency
// on a large keyspace.
func (s *Service) ClearTenant(ctx context.Context, tenantID string) (int64, error) {
	return s.clear(ctx, s.namespace+":"+tenantID+":*", "tenant")
}

// ClearNamespace removes every entry in the namespace across all
// tenants. Same scan cost caveat as ClearTenant.
func (s *Service) ClearNamespace(ctx context.Context) (int64, error) {
	return s.clear(ctx, s.namespace+":*", "namespace")
}

func (s *Service) clear(ctx context.Context, pattern, scope string) (int64, error) {
	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.store.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordClear(scope, len(keys))
	s.logger.Info("cache cleared",
		logging.F("scope", scope),
		logging.F("pattern", pattern),
		logging.F("keys", len(keys)),
	)
	return removed, nil
}

func (s *Service) degrade(op string, err error) {
	s.metrics.RecordDegraded(op)
	s.logger.Warn("cache operation degraded to miss",
		logging.F("op", op),
		logging.F("error", err.Error()),
	)
}
