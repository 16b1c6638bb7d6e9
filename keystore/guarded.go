package keystore

import (
	"context"
	"errors"
	"time"

	"github.com/centsible/fincore/pkg/breaker"
)

// Guarded wraps a Store with a circuit breaker. After the configured
// number of consecutive failures every operation short-circuits with
// ErrUnavailable instead of touching the degraded backend; once the
// recovery timeout elapses a single probe call is let through.
//
// The breaker state is process-local. Different workers may disagree
// momentarily about backend health, which is intentional: sharing the
// state would require the very store the breaker protects.
type Guarded struct {
	store Store
	cb    *breaker.Breaker
}

// NewGuarded wraps store with a circuit breaker.
func NewGuarded(store Store, cb *breaker.Breaker) *Guarded {
	return &Guarded{store: store, cb: cb}
}

// Breaker exposes the underlying breaker for observability.
func (g *Guarded) Breaker() *breaker.Breaker {
	return g.cb
}

// call routes one store operation through the breaker, mapping an open
// circuit onto the same sentinel as a transport failure.
func (g *Guarded) call(ctx context.Context, fn func() error) error {
	err := g.cb.Execute(ctx, fn)
	if errors.Is(err, breaker.ErrOpen) {
		return ErrUnavailable
	}
	return err
}

// Get treats ErrNotFound as a successful round trip: a miss is not a
// backend failure and never counts against the breaker.
func (g *Guarded) Get(ctx context.Context, key string) (string, error) {
	var (
		val      string
		notFound bool
	)
	err := g.call(ctx, func() error {
		v, err := g.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return "", err
	}
	if notFound {
		return "", ErrNotFound
	}
	return val, nil
}

func (g *Guarded) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.call(ctx, func() error {
		return g.store.Set(ctx, key, value, ttl)
	})
}

func (g *Guarded) Delete(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	err := g.call(ctx, func() error {
		var err error
		n, err = g.store.Delete(ctx, keys...)
		return err
	})
	return n, err
}

func (g *Guarded) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	var n int64
	err := g.call(ctx, func() error {
		var err error
		n, err = g.store.Increment(ctx, key, amount)
		return err
	})
	return n, err
}

func (g *Guarded) IncrementWithTTL(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	var n int64
	err := g.call(ctx, func() error {
		var err error
		n, err = g.store.IncrementWithTTL(ctx, key, amount, ttl)
		return err
	})
	return n, err
}

func (g *Guarded) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := g.call(ctx, func() error {
		var err error
		ok, err = g.store.Expire(ctx, key, ttl)
		return err
	})
	return ok, err
}

func (g *Guarded) TTL(ctx context.Context, key string) (time.Duration, error) {
	var ttl time.Duration
	err := g.call(ctx, func() error {
		var err error
		ttl, err = g.store.TTL(ctx, key)
		return err
	})
	return ttl, err
}

func (g *Guarded) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := g.call(ctx, func() error {
		var err error
		fields, err = g.store.HashGetAll(ctx, key)
		return err
	})
	return fields, err
}

func (g *Guarded) HashSet(ctx context.Context, key string, fields map[string]string) error {
	return g.call(ctx, func() error {
		return g.store.HashSet(ctx, key, fields)
	})
}

func (g *Guarded) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return g.call(ctx, func() error {
		return g.store.ZAdd(ctx, key, score, member)
	})
}

func (g *Guarded) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	var members []Member
	err := g.call(ctx, func() error {
		var err error
		members, err = g.store.ZRangeWithScores(ctx, key, start, stop)
		return err
	})
	return members, err
}

func (g *Guarded) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	var n int64
	err := g.call(ctx, func() error {
		var err error
		n, err = g.store.ZRemRangeByScore(ctx, key, min, max)
		return err
	})
	return n, err
}

func (g *Guarded) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := g.call(ctx, func() error {
		var err error
		n, err = g.store.ZCard(ctx, key)
		return err
	})
	return n, err
}

func (g *Guarded) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := g.call(ctx, func() error {
		var err error
		keys, err = g.store.Keys(ctx, pattern)
		return err
	})
	return keys, err
}
