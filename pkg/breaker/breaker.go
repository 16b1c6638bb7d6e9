// Package breaker implements a process-local circuit breaker protecting
// calls to a degraded dependency.
//
// The state is deliberately not shared across worker processes: each
// worker detects and recovers from backing-store outages on its own.
// Coordinating breaker state would itself require the resource the
// breaker protects.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/centsible/fincore/logging"
)

// State represents the current state of the circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// opens the circuit.
	DefaultFailureThreshold = 5

	// DefaultRecoveryTimeout is how long an open circuit waits before
	// letting a probe call through.
	DefaultRecoveryTimeout = 60 * time.Second
)

// ErrOpen is returned when the circuit breaker refuses a call.
var ErrOpen = errors.New("breaker: circuit open")

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens (default: 5).
	FailureThreshold int

	// RecoveryTimeout is the duration to wait before transitioning from
	// open to half-open (default: 60s).
	RecoveryTimeout time.Duration

	// Logger receives state transition logs (default: NoopLogger).
	Logger logging.Logger

	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(state State)
}

// Breaker is a process-local circuit breaker.
type Breaker struct {
	mu sync.Mutex

	state            State
	failureThreshold int
	recoveryTimeout  time.Duration
	failureCount     int
	lastFailureTime  time.Time

	logger        logging.Logger
	onStateChange func(State)
}

// New creates a circuit breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoopLogger{}
	}

	return &Breaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		logger:           cfg.Logger,
		onStateChange:    cfg.OnStateChange,
	}
}

// State returns the current state, accounting for recovery timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

func (b *Breaker) currentState() State {
	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.recoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs fn inside the breaker. While the circuit is open, fn is
// not invoked and ErrOpen is returned. Once the recovery timeout has
// elapsed, a single call is attempted in the half-open state: success
// closes the circuit and resets the failure count, failure re-opens it.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	b.mu.Lock()
	state := b.currentState()
	if state == StateOpen {
		b.mu.Unlock()
		return ErrOpen
	}
	if state == StateHalfOpen && b.state == StateOpen {
		// Recovery timeout elapsed; record the probe transition.
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	if err := fn(); err != nil {
		b.failure()
		return err
	}

	b.success()
	return nil
}

func (b *Breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failureCount = 0
}

func (b *Breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = time.Now()

	if b.state == StateHalfOpen {
		b.transition(StateOpen)
		return
	}
	if b.failureCount >= b.failureThreshold && b.state != StateOpen {
		b.transition(StateOpen)
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.logger.Warn("circuit breaker state change",
		logging.F("from", string(prev)),
		logging.F("to", string(next)),
		logging.F("failures", b.failureCount),
	)
	if b.onStateChange != nil {
		b.onStateChange(next)
	}
}
