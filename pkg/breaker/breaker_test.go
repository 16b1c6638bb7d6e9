package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	threshold := 3
	var lastState State
	cb := New(Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  100 * time.Millisecond,
		OnStateChange:    func(state State) { lastState = state },
	})

	ctx := context.Background()

	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < threshold-1; i++ {
		err := cb.Execute(ctx, func() error { return errors.New("fail") })
		assert.Error(t, err)
		assert.Equal(t, StateClosed, cb.State())
	}

	err := cb.Execute(ctx, func() error { return errors.New("fail") })
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, StateOpen, lastState)
	assert.Equal(t, threshold, cb.FailureCount())
}

func TestBreakerShortCircuitsWhileOpen(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	require.Equal(t, StateOpen, cb.State())

	invoked := false
	err := cb.Execute(ctx, func() error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)
}

func TestBreakerRecovery(t *testing.T) {
	timeout := 50 * time.Millisecond
	cb := New(Config{FailureThreshold: 2, RecoveryTimeout: timeout})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(timeout + 10*time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Probe succeeds: circuit closes, failure count resets.
	err := cb.Execute(ctx, func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	timeout := 50 * time.Millisecond
	cb := New(Config{FailureThreshold: 2, RecoveryTimeout: timeout})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(timeout + 10*time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(ctx, func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())

	// Immediately after the failed probe, calls short-circuit again.
	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 3})
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	require.Equal(t, 2, cb.FailureCount())

	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, 0, cb.FailureCount())

	// A fresh run of failures is needed to open.
	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	_ = cb.Execute(ctx, func() error { return errors.New("fail") })
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerConcurrentExecute(t *testing.T) {
	cb := New(Config{FailureThreshold: 5, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			_ = cb.Execute(ctx, func() error {
				if fail {
					return errors.New("fail")
				}
				return nil
			})
		}(i%2 == 0)
	}
	wg.Wait()

	// No panics or deadlocks; state is one of the valid states.
	state := cb.State()
	assert.Contains(t, []State{StateClosed, StateOpen, StateHalfOpen}, state)
}
