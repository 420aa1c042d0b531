package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

// Default restart parameters.
const (
	defaultBackoff      = 1 * time.Second
	defaultMaxBackoff   = 30 * time.Second
	defaultHealthyAfter = 30 * time.Second
)

// ErrNoSession is returned by [Supervisor.SendAudio] while no stream is open.
var ErrNoSession = errors.New("transcript: no active stt session")

// SupervisorOption configures a [Supervisor].
type SupervisorOption func(*Supervisor)

// WithStreamConfig sets the config passed to every StartStream call.
func WithStreamConfig(cfg stt.StreamConfig) SupervisorOption {
	return func(s *Supervisor) { s.cfg = cfg }
}

// WithBackoff sets the initial and maximum restart delay.
// Defaults: 1s doubling up to 30s.
func WithBackoff(initial, maxDelay time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if initial > 0 {
			s.backoff = initial
		}
		if maxDelay > 0 {
			s.maxBackoff = maxDelay
		}
	}
}

// WithHealthyAfter sets how long a stream must survive for the backoff to
// reset. Default: 30s.
func WithHealthyAfter(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.healthyAfter = d }
}

// WithSupervisorMetrics overrides the metrics instance.
func WithSupervisorMetrics(m *observe.Metrics) SupervisorOption {
	return func(s *Supervisor) { s.metrics = m }
}

// WithSupervisorLogger overrides the logger.
func WithSupervisorLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = l }
}

// Supervisor keeps one streaming STT session open for as long as Run is
// active, restarting it with exponential backoff whenever it fails or ends.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	provider     stt.Provider
	agg          *Aggregator
	cfg          stt.StreamConfig
	backoff      time.Duration
	maxBackoff   time.Duration
	healthyAfter time.Duration
	metrics      *observe.Metrics
	log          *slog.Logger

	running  atomic.Bool
	restarts atomic.Int64

	mu      sync.Mutex
	session stt.SessionHandle
}

// NewSupervisor returns a Supervisor that streams through p into agg.
func NewSupervisor(p stt.Provider, agg *Aggregator, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		provider:     p,
		agg:          agg,
		cfg:          stt.StreamConfig{SampleRate: 16000, Channels: 1},
		backoff:      defaultBackoff,
		maxBackoff:   defaultMaxBackoff,
		healthyAfter: defaultHealthyAfter,
		metrics:      observe.DefaultMetrics(),
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run opens the stream and keeps it alive until ctx is cancelled. It returns
// ctx.Err() on shutdown and an error if Run is already active.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("transcript: supervisor already running")
	}
	defer s.running.Store(false)

	delay := s.backoff
	for attempt := 1; ; attempt++ {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(started) >= s.healthyAfter {
			delay = s.backoff
		}
		s.restarts.Add(1)
		s.metrics.STTRestarts.Add(ctx, 1)
		if err != nil {
			s.log.Warn("stt stream failed", "attempt", attempt, "backoff", delay, "error", err)
			observe.CaptureError(ctx, err, map[string]string{"component": "stt"})
		} else {
			s.log.Info("stt stream ended, restarting", "attempt", attempt, "backoff", delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxBackoff)
	}
}

// runOnce opens one session and pumps it until it ends or ctx is done.
func (s *Supervisor) runOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	h, err := s.provider.StartStream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("transcript: start stream: %w", err)
	}
	s.mu.Lock()
	s.session = h
	s.mu.Unlock()
	s.log.Info("stt stream started", "sample_rate", cfg.SampleRate, "language", cfg.Language)

	defer func() {
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
		if err := h.Close(); err != nil {
			s.log.Debug("stt session close", "error", err)
		}
	}()

	start := time.Now()
	partials, finals := h.Partials(), h.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			t.IsFinal = false
			s.agg.AcceptTranscript(ctx, t, start)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			t.IsFinal = true
			s.agg.AcceptTranscript(ctx, t, start)
		}
	}
	return nil
}

// SendAudio forwards PCM to the current session. Audio arriving between
// restarts is dropped with [ErrNoSession].
func (s *Supervisor) SendAudio(pcm []byte) error {
	s.mu.Lock()
	h := s.session
	s.mu.Unlock()
	if h == nil {
		return ErrNoSession
	}
	return h.SendAudio(pcm)
}

// SetKeywords updates the boost list for future streams and tries to apply
// it to the current one. Providers that cannot update mid-stream pick the
// keywords up on the next restart.
func (s *Supervisor) SetKeywords(kw []stt.KeywordBoost) error {
	s.mu.Lock()
	s.cfg.Keywords = kw
	h := s.session
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	if err := h.SetKeywords(kw); err != nil && !errors.Is(err, stt.ErrNotSupported) {
		return err
	}
	return nil
}

// Active reports whether a stream is currently open.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Restarts returns the number of times the stream has been restarted.
func (s *Supervisor) Restarts() int64 { return s.restarts.Load() }
