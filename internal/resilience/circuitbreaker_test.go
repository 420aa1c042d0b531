package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("HTTP 503")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 5, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fail() error    { return errTest }
func succeed() error { return nil }

func newTestBreaker(clock *fakeClock, transitions *[]string) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "llm-detect",
		MaxFailures:  3,
		ResetTimeout: 10 * time.Second,
		HalfOpenMax:  2,
		Now:          clock.Now,
		OnStateChange: func(name string, from, to State) {
			if transitions != nil {
				*transitions = append(*transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
			}
		},
	})
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "lyrics"})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("defaults = %+v", cb.cfg)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v", cb.State())
	}
	if cb.Name() != "lyrics" {
		t.Errorf("Name = %q", cb.Name())
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		run   func(cb *CircuitBreaker, clock *fakeClock)
		want  State
		calls []string
	}{
		{
			name: "failures below threshold stay closed",
			run: func(cb *CircuitBreaker, _ *fakeClock) {
				cb.Execute(fail)
				cb.Execute(fail)
			},
			want: StateClosed,
		},
		{
			name: "success resets the streak",
			run: func(cb *CircuitBreaker, _ *fakeClock) {
				cb.Execute(fail)
				cb.Execute(fail)
				cb.Execute(succeed)
				cb.Execute(fail)
				cb.Execute(fail)
			},
			want: StateClosed,
		},
		{
			name: "threshold opens",
			run: func(cb *CircuitBreaker, _ *fakeClock) {
				for range 3 {
					cb.Execute(fail)
				}
			},
			want:  StateOpen,
			calls: []string{"llm-detect:closed->open"},
		},
		{
			name: "cool-off reports half-open",
			run: func(cb *CircuitBreaker, clock *fakeClock) {
				for range 3 {
					cb.Execute(fail)
				}
				clock.Advance(10 * time.Second)
			},
			want:  StateHalfOpen,
			calls: []string{"llm-detect:closed->open"},
		},
		{
			name: "successful probes close",
			run: func(cb *CircuitBreaker, clock *fakeClock) {
				for range 3 {
					cb.Execute(fail)
				}
				clock.Advance(11 * time.Second)
				cb.Execute(succeed)
				cb.Execute(succeed)
			},
			want: StateClosed,
			calls: []string{
				"llm-detect:closed->open",
				"llm-detect:open->half-open",
				"llm-detect:half-open->closed",
			},
		},
		{
			name: "failed probe reopens",
			run: func(cb *CircuitBreaker, clock *fakeClock) {
				for range 3 {
					cb.Execute(fail)
				}
				clock.Advance(11 * time.Second)
				cb.Execute(fail)
			},
			want: StateOpen,
			calls: []string{
				"llm-detect:closed->open",
				"llm-detect:open->half-open",
				"llm-detect:half-open->open",
			},
		},
		{
			name: "cancellation is not a failure",
			run: func(cb *CircuitBreaker, _ *fakeClock) {
				for range 5 {
					cb.Execute(func() error { return context.Canceled })
				}
			},
			want: StateClosed,
		},
		{
			name: "reset closes",
			run: func(cb *CircuitBreaker, _ *fakeClock) {
				for range 3 {
					cb.Execute(fail)
				}
				cb.Reset()
			},
			want:  StateClosed,
			calls: []string{"llm-detect:closed->open", "llm-detect:open->closed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			var calls []string
			cb := newTestBreaker(clock, &calls)
			tt.run(cb, clock)

			if got := cb.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
			if fmt.Sprint(calls) != fmt.Sprint(tt.calls) {
				t.Errorf("transitions = %v, want %v", calls, tt.calls)
			}
		})
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)
	for range 3 {
		cb.Execute(fail)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while open")
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock, nil)
	for range 3 {
		cb.Execute(fail)
	}
	clock.Advance(time.Minute)

	// Two probes are in flight; a third caller is turned away.
	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("third probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("state after probes = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", int(s), got, want)
		}
	}
}
