// Package mock provides a recording [display.Surface].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/versecue/internal/display"
)

var _ display.Surface = (*Surface)(nil)

// Surface records every pushed payload.
type Surface struct {
	mu       sync.Mutex
	PushErr  error
	payloads []display.Payload
}

// Push implements [display.Surface].
func (s *Surface) Push(_ context.Context, p display.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.PushErr
}

// Payloads returns a copy of the pushed payloads.
func (s *Surface) Payloads() []display.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]display.Payload, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// Last returns the most recent payload.
func (s *Surface) Last() (display.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payloads) == 0 {
		return display.Payload{}, false
	}
	return s.payloads[len(s.payloads)-1], true
}

// Reset clears recorded payloads.
func (s *Surface) Reset() {
	s.mu.Lock()
	s.payloads = nil
	s.mu.Unlock()
}
