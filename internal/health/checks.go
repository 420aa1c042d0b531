package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/versecue/internal/resilience"
)

// Pinger is a dependency that can be probed, such as a library store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a Checker that calls p.Ping.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Breaker reports circuit breaker state.
type Breaker interface {
	State() resilience.State
}

// Circuit returns an optional Checker that fails while b is open. Half-open
// counts as ready, since the next call is the probe.
func Circuit(name string, b Breaker) Checker {
	return Checker{Name: name, Optional: true, Check: func(context.Context) error {
		if s := b.State(); s == resilience.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}}
}

// Circuits returns one optional Checker per breaker, named prefix/breaker.
func Circuits(prefix string, bs []*resilience.CircuitBreaker) []Checker {
	out := make([]Checker, 0, len(bs))
	for _, b := range bs {
		out = append(out, Circuit(prefix+"/"+b.Name(), b))
	}
	return out
}

// Func wraps a plain predicate. ok reports readiness; reason explains a
// failure.
func Func(name string, fn func() (ok bool, reason string)) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if ok, reason := fn(); !ok {
			return errors.New(reason)
		}
		return nil
	}}
}
