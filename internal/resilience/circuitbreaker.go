// Package resilience guards calls to external providers (LLM, speech, lyric
// search) during a live service.
//
// [CircuitBreaker] stops hammering a backend that keeps failing so detection
// and song lookup degrade quickly instead of stalling the operator.
// [FallbackGroup] chains providers of one kind, each behind its own breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-off elapses.
	StateOpen
	// StateHalfOpen lets a few probe calls through to test recovery.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and health output.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the open cool-off before probing. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close the breaker again. Default: 3.
	HalfOpenMax int

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// CircuitBreaker is a three-state breaker. Errors caused by the caller
// giving up (context cancellation) do not count as provider failures.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int // calls admitted in half-open
	passed   int // probes that succeeded
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker is open or the half-open probe budget
// is spent, in which case it returns [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.state, cb.probes, cb.passed = StateHalfOpen, 0, 0
	}
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			err = ErrCircuitOpen
		} else {
			cb.probes++
			probe = true
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return probe, err
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	if errors.Is(err, context.Canceled) {
		// The caller gave up. Hand the probe slot back.
		if probe {
			cb.mu.Lock()
			if cb.state == StateHalfOpen && cb.probes > 0 {
				cb.probes--
			}
			cb.mu.Unlock()
		}
		return
	}

	cb.mu.Lock()
	from := cb.state
	switch {
	case err != nil && (probe || cb.state == StateHalfOpen):
		cb.trip()
	case err != nil:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures && cb.state == StateClosed {
			cb.trip()
		}
	case probe && cb.state == StateHalfOpen:
		cb.passed++
		if cb.passed >= cb.cfg.HalfOpenMax {
			cb.state, cb.failures = StateClosed, 0
		}
	default:
		cb.failures = 0
	}
	to, failures := cb.state, cb.failures
	cb.mu.Unlock()

	if from != to {
		if to == StateOpen {
			slog.Warn("circuit opened", "name", cb.cfg.Name, "failures", failures, "err", err)
		} else {
			slog.Info("circuit state changed", "name", cb.cfg.Name, "from", from, "to", to)
		}
	}
	cb.notify(from, to)
}

// trip opens the breaker. Caller must hold cb.mu.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Now()
	cb.failures = cb.cfg.MaxFailures
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State reports the current state. An open breaker whose cool-off has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state, cb.failures, cb.probes, cb.passed = StateClosed, 0, 0, 0
	cb.mu.Unlock()

	slog.Info("circuit reset", "name", cb.cfg.Name)
	cb.notify(from, StateClosed)
}
