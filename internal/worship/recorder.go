package worship

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/pkg/audio"
)

// defaultMaxRecording bounds the buffer when auto-stop is disabled.
const defaultMaxRecording = 60 * time.Second

// Matcher is the identification backend of a [Recorder]. *Orchestrator
// implements it.
type Matcher interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
	Search(ctx context.Context, transcript string) []library.Match
}

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithFormat sets the PCM format Append expects. Default: 16 kHz mono.
func WithFormat(f audio.Format) RecorderOption {
	return func(r *Recorder) { r.format = f }
}

// WithAutoStop stops a recording after d. Zero disables it. Default: 10s.
func WithAutoStop(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.autoStop = d }
}

// WithOnChange registers a callback invoked with every new snapshot. It runs
// without the recorder lock held.
func WithOnChange(fn func(Session)) RecorderOption {
	return func(r *Recorder) { r.onChange = fn }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = l }
}

// WithRecorderClock overrides time.Now.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder owns one operator's recording session. Starting a new recording
// replaces the previous one; results of superseded recordings are dropped
// using a generation counter. It is safe for concurrent use.
type Recorder struct {
	matcher  Matcher
	format   audio.Format
	autoStop time.Duration
	onChange func(Session)
	log      *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	gen        uint64
	status     Status
	buf        []byte
	startedAt  time.Time
	stoppedAt  time.Time
	transcript string
	matches    []library.Match
	reason     string
	timer      *time.Timer
}

// NewRecorder returns an idle Recorder.
func NewRecorder(m Matcher, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		matcher:  m,
		format:   audio.STTFormat,
		autoStop: DefaultAutoStop,
		log:      slog.Default(),
		now:      time.Now,
		status:   StatusIdle,
	}
	for _, o := range opts {
		o(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// SetAutoStop changes the auto-stop delay for future recordings.
func (r *Recorder) SetAutoStop(d time.Duration) {
	r.mu.Lock()
	r.autoStop = d
	r.mu.Unlock()
}

// Format returns the PCM format Append expects.
func (r *Recorder) Format() audio.Format { return r.format }

// Start begins a new recording, discarding any previous state including
// in-flight identification.
func (r *Recorder) Start() Session {
	r.mu.Lock()
	r.resetLocked()
	r.status = StatusRecording
	r.startedAt = r.now()
	if r.autoStop > 0 {
		gen := r.gen
		r.timer = time.AfterFunc(r.autoStop, func() { r.stop(gen) })
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return snap
}

// Append buffers PCM in the recorder's format.
func (r *Recorder) Append(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRecording {
		return ErrNotRecording
	}
	limit := r.maxBytesLocked()
	if room := limit - len(r.buf); len(pcm) > room {
		pcm = pcm[:max(room, 0)]
	}
	r.buf = append(r.buf, pcm...)
	return nil
}

// Stop ends the recording and starts identification in the background. It
// is idempotent: outside the recording state it returns the current
// snapshot unchanged.
func (r *Recorder) Stop() Session {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	return r.stop(gen)
}

func (r *Recorder) stop(gen uint64) Session {
	r.mu.Lock()
	if r.gen != gen || r.status != StatusRecording {
		snap := r.snapshotLocked()
		r.mu.Unlock()
		return snap
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.status = StatusTranscribing
	r.stoppedAt = r.now()
	clip := audio.Clip{PCM: r.buf, Format: r.format}
	snap := r.snapshotLocked()
	r.wg.Add(1)
	r.mu.Unlock()

	r.notify(snap)
	go r.identify(gen, clip)
	return snap
}

// identify runs outside the lock. Stop and Reset never cancel it; a stale
// generation simply discards the result.
func (r *Recorder) identify(gen uint64, clip audio.Clip) {
	defer r.wg.Done()
	ctx := r.ctx

	text, err := r.matcher.Transcribe(ctx, clip)
	if err != nil {
		r.fail(ctx, gen, text, err)
		return
	}
	if !r.advance(gen, func() {
		r.status = StatusSearching
		r.transcript = text
	}) {
		return
	}

	matches := r.matcher.Search(ctx, text)
	if len(matches) == 0 {
		r.fail(ctx, gen, text, fmt.Errorf("%w: %q", ErrNoMatch, text))
		return
	}
	r.advance(gen, func() {
		r.status = StatusComplete
		r.matches = matches
	})
}

func (r *Recorder) fail(ctx context.Context, gen uint64, text string, err error) {
	if !r.advance(gen, func() {
		r.status = StatusError
		r.transcript = text
		r.reason = Reason(err)
	}) {
		return
	}
	r.log.Warn("song identification failed", "err", err)
	observe.CaptureError(ctx, err, map[string]string{"component": "worship"})
}

// advance applies fn if gen is still current and reports whether it did.
func (r *Recorder) advance(gen uint64, fn func()) bool {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return false
	}
	fn()
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return true
}

// Reset returns to idle and discards buffered audio and results.
func (r *Recorder) Reset() Session {
	r.mu.Lock()
	r.resetLocked()
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return snap
}

func (r *Recorder) resetLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.status = StatusIdle
	r.buf = nil
	r.startedAt, r.stoppedAt = time.Time{}, time.Time{}
	r.transcript = ""
	r.matches = nil
	r.reason = ""
}

// Snapshot returns the current session state.
func (r *Recorder) Snapshot() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Match returns the i-th match of a completed session.
func (r *Recorder) Match(i int) (library.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusComplete || i < 0 || i >= len(r.matches) {
		return library.Match{}, fmt.Errorf("%w: %d", ErrNoSuchMatch, i)
	}
	return r.matches[i], nil
}

// Wait blocks until background identification finishes.
func (r *Recorder) Wait() { r.wg.Wait() }

// Close cancels in-flight identification and waits for it.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Recorder) snapshotLocked() Session {
	s := Session{
		Status:        r.status,
		BufferedBytes: len(r.buf),
		Transcript:    r.transcript,
		Matches:       append([]library.Match(nil), r.matches...),
		Reason:        r.reason,
	}
	switch {
	case r.startedAt.IsZero():
	case r.status == StatusRecording:
		s.Elapsed = r.now().Sub(r.startedAt)
	default:
		s.Elapsed = r.stoppedAt.Sub(r.startedAt)
	}
	return s
}

func (r *Recorder) maxBytesLocked() int {
	d := defaultMaxRecording
	if r.autoStop > 0 {
		d = max(r.autoStop*2, d)
	}
	return int(d.Seconds()) * r.format.SampleRate * r.format.Channels * 2
}

func (r *Recorder) notify(s Session) {
	if r.onChange != nil {
		r.onChange(s)
	}
}
