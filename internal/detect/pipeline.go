package detect

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/versecue/internal/detect/parser"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/internal/scripture"
)

// DefaultFloor is the minimum confidence a candidate needs to reach the
// review queue.
const DefaultFloor = 0.80

// Fragment is one piece of transcript text from the speech source.
type Fragment struct {
	Text  string
	Final bool
	At    time.Time
}

// Sink receives candidates that cleared the floor and the cooldown. The
// review queue is the production sink.
type Sink interface {
	AddCandidates(ctx context.Context, cands []scripture.Candidate)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, cands []scripture.Candidate)

// AddCandidates calls f.
func (f SinkFunc) AddCandidates(ctx context.Context, cands []scripture.Candidate) { f(ctx, cands) }

// Detector is the probabilistic detection path. Implementations must not
// return errors; failure is an empty result.
type Detector interface {
	Detect(ctx context.Context, text string) []scripture.Candidate
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithDetector enables the probabilistic second wave.
func WithDetector(d Detector) PipelineOption {
	return func(p *Pipeline) {
		p.detector = d
		p.llmEnabled.Store(d != nil)
	}
}

// WithFloor sets the merge confidence floor. Default: 0.80.
func WithFloor(f float64) PipelineOption {
	return func(p *Pipeline) { p.floor = f }
}

// WithCooldown sets the repeat-suppression window. Zero disables it.
// Default: 60s.
func WithCooldown(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.cooldown = NewCooldown(d) }
}

// WithPhraseMatching toggles the verbatim quotation fallback. Default: on.
func WithPhraseMatching(on bool) PipelineOption {
	return func(p *Pipeline) { p.phrases = on }
}

// WithMinChars sets the shortest final fragment that starts a second wave.
// Default: 20.
func WithMinChars(n int) PipelineOption {
	return func(p *Pipeline) { p.minChars = n }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline runs hybrid detection over finalized transcript fragments.
//
// The deterministic wave runs synchronously inside [Pipeline.Process] and is
// emitted before Process returns. The probabilistic wave runs on its own
// goroutine and is appended when it completes; it never delays the first
// wave. All methods are safe for concurrent use.
type Pipeline struct {
	sink     Sink
	detector Detector
	cooldown *Cooldown
	metrics  *observe.Metrics
	phrases  bool
	minChars int

	mu    sync.RWMutex
	floor float64

	paused     atomic.Bool
	llmEnabled atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifeMu sync.Mutex
	closed bool
}

// NewPipeline returns a Pipeline that emits into sink.
func NewPipeline(sink Sink, opts ...PipelineOption) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		sink:     sink,
		cooldown: NewCooldown(DefaultCooldown),
		phrases:  true,
		minChars: 20,
		floor:    DefaultFloor,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process runs detection on f. Interim fragments and fragments received while
// paused are ignored.
func (p *Pipeline) Process(ctx context.Context, f Fragment) {
	if !f.Final || p.paused.Load() {
		return
	}
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return
	}
	floor := p.Floor()

	det := parser.Parse(text)
	if len(det) == 0 && p.phrases {
		det = parser.MatchPhrases(text)
	}
	first := Merge(det, nil, floor)
	p.emit(ctx, "1", first)

	if !p.llmEnabled.Load() || p.detector == nil || len([]rune(text)) < p.minChars {
		return
	}
	p.lifeMu.Lock()
	if p.closed {
		p.lifeMu.Unlock()
		return
	}
	p.wg.Add(1)
	p.lifeMu.Unlock()

	go func() {
		defer p.wg.Done()

		// The second wave outlives the caller's request but not the pipeline.
		wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(p.ctx, cancel)
		defer stop()

		start := time.Now()
		prob := p.detector.Detect(wctx, text)
		p.metrics.LLMDetectDuration.Record(wctx, time.Since(start).Seconds())

		if wctx.Err() != nil || p.paused.Load() {
			return
		}
		merged := Merge(first, prob, floor)
		p.emit(wctx, "2", merged[len(first):])
	}()
}

func (p *Pipeline) emit(ctx context.Context, wave string, cands []scripture.Candidate) {
	if len(cands) == 0 {
		return
	}
	out := cands[:0:0]
	for _, c := range cands {
		if !p.cooldown.Allow(c.Key) {
			p.metrics.DetectionSuppressed.Add(ctx, 1)
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return
	}

	var det, prob int
	for _, c := range out {
		if c.Origin == scripture.OriginDeterministic {
			det++
		} else {
			prob++
		}
	}
	p.metrics.RecordCandidates(ctx, string(scripture.OriginDeterministic), wave, det)
	p.metrics.RecordCandidates(ctx, string(scripture.OriginProbabilistic), wave, prob)

	observe.Logger(ctx).Debug("detection wave", "wave", wave, "candidates", len(out))
	p.sink.AddCandidates(ctx, out)
}

// Pause stops detection. Fragments keep flowing to the transcript but no
// candidates are produced until [Pipeline.Resume].
func (p *Pipeline) Pause() { p.paused.Store(true) }

// Resume re-enables detection after [Pipeline.Pause].
func (p *Pipeline) Resume() { p.paused.Store(false) }

// Paused reports whether detection is paused.
func (p *Pipeline) Paused() bool { return p.paused.Load() }

// SetLLMEnabled toggles the probabilistic wave. It has no effect when no
// detector was configured.
func (p *Pipeline) SetLLMEnabled(on bool) { p.llmEnabled.Store(on && p.detector != nil) }

// LLMEnabled reports whether the probabilistic wave runs.
func (p *Pipeline) LLMEnabled() bool { return p.llmEnabled.Load() }

// Floor returns the current merge floor.
func (p *Pipeline) Floor() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.floor
}

// SetFloor changes the merge floor for subsequent fragments.
func (p *Pipeline) SetFloor(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.floor = f
}

// Cooldown exposes the repeat-suppression state for reconfiguration and
// session resets.
func (p *Pipeline) Cooldown() *Cooldown { return p.cooldown }

// Wait blocks until every in-flight second wave has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Close cancels in-flight second waves and waits for them to return.
func (p *Pipeline) Close() {
	p.lifeMu.Lock()
	p.closed = true
	p.lifeMu.Unlock()

	p.cancel()
	p.wg.Wait()
	slog.Debug("detection pipeline closed")
}
