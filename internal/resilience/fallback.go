package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the template for the breaker each entry gets. Name is
// replaced with the entry's name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// OnAttempt, if set, is called after every entry that was actually
	// called, with its name and result. Skipped entries are not reported.
	OnAttempt func(name string, err error)
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds providers of one kind in preference order. Entries are
// registered during startup; calls are safe for concurrent use afterwards.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Breakers returns each entry's breaker in order, for health reporting.
func (fg *FallbackGroup[T]) Breakers() []*CircuitBreaker {
	out := make([]*CircuitBreaker, len(fg.members))
	for i, m := range fg.members {
		out[i] = m.breaker
	}
	return out
}

// Execute calls fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn against each entry until one succeeds and
// returns its result. Entries with an open breaker are skipped. A context
// cancellation stops the walk, since the next entry would see the same
// context. When everything fails the error wraps [ErrAllFailed] and every
// attempt's error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if fg.cfg.OnAttempt != nil && !errors.Is(err, ErrCircuitOpen) {
			fg.cfg.OnAttempt(m.name, err)
		}
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, context.Canceled):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		default:
			slog.Warn("provider failed, failing over", "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
