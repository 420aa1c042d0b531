// Package transcript assembles the live sermon transcript and feeds it to
// detection.
//
// The [Aggregator] keeps a bounded history of final segments and the latest
// interim text, optionally repairs misheard book names, and forwards each
// final segment to a [FragmentHandler]. The [Supervisor] keeps a streaming
// STT session alive and pumps its results into the aggregator, so the
// handler never notices restarts.
package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

// DefaultHistory is the number of final segments retained.
const DefaultHistory = 200

// FragmentHandler consumes final transcript fragments. *detect.Pipeline
// implements it.
type FragmentHandler interface {
	Process(ctx context.Context, f detect.Fragment)
}

// Corrector rewrites a final segment before detection. *phonetic.Corrector
// implements it.
type Corrector interface {
	Correct(text string) string
}

// Segment is one final piece of transcript.
type Segment struct {
	Text string `json:"text"`
	// Original is the recognised text when a correction changed it.
	Original string    `json:"original,omitempty"`
	At       time.Time `json:"at"`
}

// AggregatorOption configures an [Aggregator].
type AggregatorOption func(*Aggregator)

// WithCorrector enables book-name correction of final segments.
func WithCorrector(c Corrector) AggregatorOption {
	return func(a *Aggregator) { a.corrector = c }
}

// WithHistory bounds the retained segments. Default: 200.
func WithHistory(n int) AggregatorOption {
	return func(a *Aggregator) { a.history = n }
}

// WithClock overrides time.Now for segments without a timestamp.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	handler   FragmentHandler
	corrector Corrector
	history   int
	now       func() time.Time

	mu       sync.RWMutex
	segments []Segment
	interim  string
}

// NewAggregator returns an Aggregator forwarding finals to h. A nil h only
// records.
func NewAggregator(h FragmentHandler, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{handler: h, history: DefaultHistory, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Accept records f. Interim fragments replace the interim text; final
// fragments are corrected, appended and handed to the handler.
func (a *Aggregator) Accept(ctx context.Context, f detect.Fragment) {
	text := strings.TrimSpace(f.Text)
	if !f.Final {
		a.mu.Lock()
		a.interim = text
		a.mu.Unlock()
		return
	}
	if text == "" {
		return
	}
	if f.At.IsZero() {
		f.At = a.now()
	}
	seg := Segment{Text: text, At: f.At}
	if a.corrector != nil {
		if fixed := a.corrector.Correct(text); fixed != text {
			seg.Text, seg.Original = fixed, text
		}
	}

	a.mu.Lock()
	a.segments = append(a.segments, seg)
	if over := len(a.segments) - a.history; a.history > 0 && over > 0 {
		a.segments = append(a.segments[:0:0], a.segments[over:]...)
	}
	a.interim = ""
	a.mu.Unlock()

	if a.handler != nil {
		a.handler.Process(ctx, detect.Fragment{Text: seg.Text, Final: true, At: seg.At})
	}
}

// AcceptTranscript adapts an STT result. start anchors the transcript's
// relative timestamp.
func (a *Aggregator) AcceptTranscript(ctx context.Context, t stt.Transcript, start time.Time) {
	var at time.Time
	if !start.IsZero() {
		at = start.Add(t.Timestamp)
	}
	a.Accept(ctx, detect.Fragment{Text: t.Text, Final: t.IsFinal, At: at})
}

// Segments returns a copy of the retained final segments, oldest first.
func (a *Aggregator) Segments() []Segment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Segment(nil), a.segments...)
}

// Interim returns the latest interim text.
func (a *Aggregator) Interim() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.interim
}

// Text returns the retained transcript as one string.
func (a *Aggregator) Text() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	parts := make([]string, len(a.segments))
	for i, s := range a.segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// Clear drops all segments and the interim text.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.segments = nil
	a.interim = ""
	a.mu.Unlock()
}
