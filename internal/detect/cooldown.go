package detect

import (
	"sync"
	"time"
)

// DefaultCooldown is how long a reference key stays suppressed after it was
// queued.
const DefaultCooldown = 60 * time.Second

// Cooldown remembers when each reference key was last emitted and rejects
// repeats inside the window. It is safe for concurrent use.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewCooldown returns a Cooldown with the given window. A non-positive window
// disables suppression.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether key may be emitted now and, if so, records it.
func (c *Cooldown) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window <= 0 {
		return true
	}

	now := c.now()
	if at, ok := c.last[key]; ok && now.Sub(at) < c.window {
		return false
	}
	c.last[key] = now

	// Opportunistic sweep keeps the map bounded over a long service.
	if len(c.last) > 256 {
		for k, at := range c.last {
			if now.Sub(at) >= c.window {
				delete(c.last, k)
			}
		}
	}
	return true
}

// SetWindow changes the suppression window. Existing entries are kept.
func (c *Cooldown) SetWindow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = d
}

// Reset forgets every recorded key.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.last)
}
