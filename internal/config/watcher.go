package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and hands every valid edit to a callback, so
// floors and queue policy can be tuned from the booth mid-service. An edit
// that fails to parse or validate is logged and kept as [Watcher.LastError];
// the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte
	lastErr error
	reloads int

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload events.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and starts polling it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		log:      slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, sum, mtime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.sum, w.mtime = cfg, sum, mtime

	go w.loop()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// LastError returns why the most recent edit was rejected, or nil once a
// later edit loads cleanly.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Reloads counts the edits applied since start.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.Check()
		}
	}
}

// Check looks at the file once and applies a changed, valid config. It
// reports whether onChange was called. Polling calls it on every tick.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.reject(err)
		return false
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return false
	}

	cfg, sum, mtime, err := w.read()
	w.mu.Lock()
	w.mtime = info.ModTime()
	w.mu.Unlock()
	if err != nil {
		// Logged once per edit, not once per tick.
		w.reject(err)
		return false
	}

	w.mu.Lock()
	w.mtime = mtime
	if sum == w.sum {
		// Touched or rewritten with the same bytes.
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current, w.sum, w.lastErr = cfg, sum, nil
	w.reloads++
	w.mu.Unlock()

	d := Diff(old, cfg)
	w.log.Info("config reloaded", "path", w.path, "hot", d.Any(), "restart_required", d.RestartRequired)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

func (w *Watcher) reject(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	w.log.Warn("config edit rejected, keeping previous config", "path", w.path, "err", err)
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, time.Time, error) {
	var none [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, none, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, none, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, none, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
