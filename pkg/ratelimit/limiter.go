// Package ratelimit implements tenant-scoped rate limiting over a
// keystore.Store using three interchangeable algorithms: fixed window,
// sliding window, and token bucket.
//
// Every key is prefixed with the tenant, rate type, and identifier, so
// two tenants can never contend for or observe the same counter. All
// counter state lives in the backing store; the limiter itself holds no
// mutable state, which makes it safe to run in any number of worker
// processes.
//
// Rate limiting is never a single point of total request failure: any
// backing-store error during a check is caught and the call fails open.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/centsible/fincore/keystore"
	"github.com/centsible/fincore/logging"
)

// DefaultKeyPrefix is prepended to every rate limit key.
const DefaultKeyPrefix = "rate_limit"

// idleBucketGrace is added to the token bucket TTL beyond the time a
// full refill takes, so idle buckets self-expire.
const idleBucketGrace = 60 * time.Second

// Config holds limiter configuration.
type Config struct {
	// Store is the backing keyed store (required). Wrap it in a
	// keystore.Guarded to add circuit breaking.
	Store keystore.Store

	// KeyPrefix overrides DefaultKeyPrefix.
	KeyPrefix string

	// Logger is used for structured logging (default: NoopLogger).
	Logger logging.Logger

	// Metrics tracks decisions (default: NoopMetrics).
	Metrics Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Limiter checks requests against tenant-scoped rate limits.
type Limiter struct {
	store   keystore.Store
	prefix  string
	logger  logging.Logger
	metrics Metrics
	now     func() time.Time
}

// New creates a new limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Limiter{
		store:   cfg.Store,
		prefix:  cfg.KeyPrefix,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}, nil
}

// Check decides whether one request for the given tenant, identifier and
// rate type is admitted under limit. The error return is non-nil only
// for an invalid Limit; backing-store failures never surface here, the
// check fails open instead (Result.FailedOpen reports it).
func (l *Limiter) Check(ctx context.Context, tenantID, identifier, rateType string, limit Limit) (bool, *Result, error) {
	if err := validate(limit); err != nil {
		return false, nil, err
	}

	start := time.Now()
	var res *Result
	switch limit.Strategy {
	case StrategyFixedWindow:
		res = l.checkFixedWindow(ctx, tenantID, identifier, rateType, limit)
	case StrategySlidingWindow:
		res = l.checkSlidingWindow(ctx, tenantID, identifier, rateType, limit)
	case StrategyTokenBucket:
		res = l.checkTokenBucket(ctx, tenantID, identifier, rateType, limit)
	}

	l.metrics.RecordCheck(tenantID, rateType, limit.Strategy, res.Allowed, time.Since(start))
	return res.Allowed, res, nil
}

// Enforce checks the limit and returns an *ExceededError when denied.
func (l *Limiter) Enforce(ctx context.Context, tenantID, identifier, rateType string, limit Limit) error {
	allowed, res, err := l.Check(ctx, tenantID, identifier, rateType, limit)
	if err != nil {
		return err
	}
	if !allowed {
		return &ExceededError{
			TenantID:   tenantID,
			Identifier: identifier,
			RateType:   rateType,
			RetryAfter: res.RetryAfter,
			Result:     res,
		}
	}
	return nil
}

// Reset deletes every key under the identifier's prefix, across all
// strategies and windows. Administrative override for unblocking an
// identifier after investigation.
func (l *Limiter) Reset(ctx context.Context, tenantID, identifier, rateType string) error {
	pattern := l.baseKey(tenantID, identifier, rateType) + "*"
	keys, err := l.store.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if _, err := l.store.Delete(ctx, keys...); err != nil {
			return err
		}
	}
	l.metrics.RecordReset(tenantID, rateType)
	l.logger.Info("rate limit reset",
		logging.F("tenant_id", tenantID),
		logging.F("identifier", identifier),
		logging.F("rate_type", rateType),
		logging.F("keys_deleted", len(keys)),
	)
	return nil
}

// baseKey builds the tenant-scoped key prefix. The tenant ID is part of
// the physical key, not a filter: cross-tenant collisions are impossible
// even for identical identifiers.
func (l *Limiter) baseKey(tenantID, identifier, rateType string) string {
	return fmt.Sprintf("%s:%s:%s:%s", l.prefix, tenantID, rateType, identifier)
}

func (l *Limiter) checkFixedWindow(ctx context.Context, tenantID, identifier, rateType string, limit Limit) *Result {
	now := l.now()
	windowMs := limit.Window.Milliseconds()
	windowStart := (now.UnixMilli() / windowMs) * windowMs
	key := fmt.Sprintf("%s:%d", l.baseKey(tenantID, identifier, rateType), windowStart)

	// First writer in a window sets the expiry atomically with the
	// increment, so there is no exists-check race.
	count, err := l.store.IncrementWithTTL(ctx, key, 1, limit.Window)
	if err != nil {
		return l.failOpen(limit, err)
	}

	reset := time.UnixMilli(windowStart + windowMs)
	res := &Result{
		Allowed:   count <= int64(limit.Limit),
		Limit:     limit.Limit,
		Remaining: int(math.Max(0, float64(int64(limit.Limit)-count))),
		ResetTime: reset,
	}
	if !res.Allowed {
		res.RetryAfter = reset.Sub(now)
	}
	return res
}

func (l *Limiter) checkSlidingWindow(ctx context.Context, tenantID, identifier, rateType string, limit Limit) *Result {
	now := l.now()
	key := l.baseKey(tenantID, identifier, rateType)
	nowMs := float64(now.UnixMilli())
	cutoff := nowMs - float64(limit.Window.Milliseconds())

	// Evict on read. Members are only added while count < limit, so the
	// set never grows past limit members regardless of clock behavior.
	if _, err := l.store.ZRemRangeByScore(ctx, key, math.Inf(-1), cutoff); err != nil {
		return l.failOpen(limit, err)
	}

	count, err := l.store.ZCard(ctx, key)
	if err != nil {
		return l.failOpen(limit, err)
	}

	res := &Result{Limit: limit.Limit}

	if count < int64(limit.Limit) {
		member := strconv.FormatInt(now.UnixNano(), 10)
		if err := l.store.ZAdd(ctx, key, nowMs, member); err != nil {
			return l.failOpen(limit, err)
		}
		// Best effort: a missed expiry only delays eviction to the next read.
		_, _ = l.store.Expire(ctx, key, limit.Window)

		res.Allowed = true
		res.Remaining = limit.Limit - int(count) - 1
		res.ResetTime = now.Add(limit.Window)
		return res
	}

	res.Allowed = false
	res.Remaining = 0
	res.ResetTime = now.Add(limit.Window)

	oldest, err := l.store.ZRangeWithScores(ctx, key, 0, 0)
	if err == nil && len(oldest) > 0 {
		expiry := time.UnixMilli(int64(oldest[0].Score)).Add(limit.Window)
		res.ResetTime = expiry
		if wait := expiry.Sub(now); wait > 0 {
			res.RetryAfter = wait
		}
	}
	return res
}

func (l *Limiter) checkTokenBucket(ctx context.Context, tenantID, identifier, rateType string, limit Limit) *Result {
	now := l.now()
	key := l.baseKey(tenantID, identifier, rateType)

	fields, err := l.store.HashGetAll(ctx, key)
	if err != nil {
		return l.failOpen(limit, err)
	}

	tokens := limit.Capacity
	lastRefill := now
	if raw, ok := fields["tokens"]; ok {
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
			tokens = v
		}
	}
	if raw, ok := fields["last_refill"]; ok {
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
			sec, frac := math.Modf(v)
			lastRefill = time.Unix(int64(sec), int64(frac*1e9))
		}
	}

	// Lazy refill based on elapsed time; no background ticker.
	if elapsed := now.Sub(lastRefill).Seconds(); elapsed > 0 {
		tokens = math.Min(limit.Capacity, tokens+elapsed*limit.RefillRate)
	}

	requested := limit.Requested
	if requested <= 0 {
		requested = 1
	}

	allowed := tokens >= requested
	if allowed {
		tokens -= requested
	}

	// Persist unconditionally, even on denial, so refill progress since
	// last_refill is captured.
	write := map[string]string{
		"tokens":      strconv.FormatFloat(tokens, 'f', -1, 64),
		"last_refill": strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', -1, 64),
	}
	if err := l.store.HashSet(ctx, key, write); err != nil {
		return l.failOpen(limit, err)
	}
	ttl := time.Duration(limit.Capacity/limit.RefillRate*float64(time.Second)) + idleBucketGrace
	_, _ = l.store.Expire(ctx, key, ttl)

	res := &Result{
		Allowed:   allowed,
		Limit:     int(limit.Capacity),
		Remaining: int(math.Floor(tokens)),
		Tokens:    tokens,
	}
	if deficit := limit.Capacity - tokens; deficit > 0 {
		res.ResetTime = now.Add(time.Duration(deficit / limit.RefillRate * float64(time.Second)))
	} else {
		res.ResetTime = now
	}
	if !allowed {
		res.RetryAfter = time.Duration(math.Ceil((requested-tokens)/limit.RefillRate)) * time.Second
	}
	return res
}

// failOpen admits a request the store could not count. Rate limiting is
// a secondary subsystem; its outage must not take down the primary
// request path.
func (l *Limiter) failOpen(limit Limit, err error) *Result {
	l.logger.Warn("rate limit check failed open",
		logging.F("strategy", string(limit.Strategy)),
		logging.F("error", err.Error()),
	)
	l.metrics.RecordFailOpen(limit.Strategy)

	res := &Result{
		Allowed:    true,
		Limit:      limit.Limit,
		FailedOpen: true,
		Err:        err,
	}
	if limit.Strategy == StrategyTokenBucket {
		res.Limit = int(limit.Capacity)
		res.Tokens = limit.Capacity
	}
	res.Remaining = res.Limit
	return res
}

func validate(limit Limit) error {
	switch limit.Strategy {
	case StrategyFixedWindow, StrategySlidingWindow:
		if limit.Limit <= 0 || limit.Window <= 0 {
			return fmt.Errorf("%w: %s requires positive limit and window", ErrInvalidLimit, limit.Strategy)
		}
	case StrategyTokenBucket:
		if limit.Capacity <= 0 || limit.RefillRate <= 0 {
			return fmt.Errorf("%w: token_bucket requires positive capacity and refill rate", ErrInvalidLimit)
		}
		if limit.Requested < 0 || limit.Requested > limit.Capacity {
			return fmt.Errorf("%w: requested tokens must be within bucket capacity", ErrInvalidLimit)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidLimit, limit.Strategy)
	}
	return nil
}
