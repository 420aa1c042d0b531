package worship

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/internal/resilience"
	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/llm"
	"github.com/MrWong99/versecue/pkg/provider/lyrics"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

// Settings are the hot-reloadable orchestrator tunables.
type Settings struct {
	MinAudioBytes      int
	MinTranscriptChars int
	MaxResults         int
	StrategyTimeout    time.Duration
	LLMIdentify        bool
}

// DefaultSettings returns the built-in tunables.
func DefaultSettings() Settings {
	return Settings{
		MinAudioBytes:      DefaultMinAudioBytes,
		MinTranscriptChars: DefaultMinTranscriptChars,
		MaxResults:         DefaultMaxResults,
		StrategyTimeout:    DefaultStrategyTimeout,
	}
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithLyrics enables the external lyric search strategy.
func WithLyrics(p lyrics.Provider) Option {
	return func(o *Orchestrator) { o.lyrics = p }
}

// WithLyricsBreaker routes external lyric searches through cb.
func WithLyricsBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *Orchestrator) { o.breaker = cb }
}

// WithLLM sets the model used for song identification. The strategy only
// runs while Settings.LLMIdentify is true.
func WithLLM(p llm.Provider) Option {
	return func(o *Orchestrator) { o.llm = p }
}

// WithOrganization scopes local searches to org.
func WithOrganization(org string) Option {
	return func(o *Orchestrator) { o.org = org }
}

// WithSettings replaces the default tunables.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator turns a recorded snippet into ranked song matches. It is safe
// for concurrent use.
type Orchestrator struct {
	store       library.Store
	transcriber stt.Transcriber
	lyrics      lyrics.Provider
	breaker     *resilience.CircuitBreaker
	llm         llm.Provider
	org         string
	metrics     *observe.Metrics
	log         *slog.Logger

	mu       sync.RWMutex
	settings Settings
}

// New returns an Orchestrator searching store and transcribing with t.
func New(store library.Store, t stt.Transcriber, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		transcriber: t,
		settings:    DefaultSettings(),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Settings returns the current tunables.
func (o *Orchestrator) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// Apply replaces the tunables. Zero numeric fields keep their defaults.
func (o *Orchestrator) Apply(s Settings) {
	d := DefaultSettings()
	s.MinAudioBytes = cmp.Or(s.MinAudioBytes, d.MinAudioBytes)
	s.MinTranscriptChars = cmp.Or(s.MinTranscriptChars, d.MinTranscriptChars)
	s.MaxResults = cmp.Or(s.MaxResults, d.MaxResults)
	s.StrategyTimeout = cmp.Or(s.StrategyTimeout, d.StrategyTimeout)
	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()
}

// Identify transcribes clip and searches for the song. It fails with
// [ErrTooShort], [ErrTranscription] or [ErrUnclear]; an empty result with a
// nil error means nothing matched.
func (o *Orchestrator) Identify(ctx context.Context, clip audio.Clip) ([]library.Match, error) {
	start := time.Now()
	text, err := o.Transcribe(ctx, clip)
	if err != nil {
		o.metrics.RecordIdentify(ctx, outcome(err), time.Since(start))
		return nil, err
	}
	matches := o.Search(ctx, text)
	o.metrics.RecordIdentify(ctx, outcomeOf(matches), time.Since(start))
	return matches, nil
}

// Transcribe validates clip and returns its transcript. It is the first half
// of [Orchestrator.Identify], exposed so the recorder can report progress
// between the two phases.
func (o *Orchestrator) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	s := o.Settings()
	if clip.Len() < s.MinAudioBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooShort, clip.Len())
	}
	text, err := o.transcriber.Transcribe(ctx, clip)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < s.MinTranscriptChars {
		return text, fmt.Errorf("%w: %q", ErrUnclear, text)
	}
	return text, nil
}

// strategy is one independent search.
type strategy struct {
	name string
	run  func(ctx context.Context) ([]library.Match, error)
}

// Search runs every applicable strategy concurrently and returns the merged
// ranking. A failing or timed-out strategy contributes nothing.
func (o *Orchestrator) Search(ctx context.Context, transcript string) []library.Match {
	s := o.Settings()
	strategies := o.strategies(transcript, s)
	results := make([][]library.Match, len(strategies))

	var g errgroup.Group
	for i, st := range strategies {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, s.StrategyTimeout)
			defer cancel()
			begin := time.Now()
			ms, err := st.run(sctx)
			if err != nil {
				observe.Logger(ctx).Warn("song search strategy failed", "strategy", st.name, "err", err)
				o.metrics.RecordProviderError(ctx, st.name, "song_search")
				ms = nil
			}
			o.metrics.RecordStrategy(ctx, st.name, time.Since(begin), len(ms))
			results[i] = ms
			return nil
		})
	}
	_ = g.Wait()
	return merge(results, s.MaxResults)
}

// strategies lists the searches that apply to transcript, in merge order.
func (o *Orchestrator) strategies(transcript string, s Settings) []strategy {
	var out []strategy
	if o.store != nil {
		out = append(out, strategy{StrategyTitle, func(ctx context.Context) ([]library.Match, error) {
			songs, err := o.store.SearchTitle(ctx, o.org, transcript)
			return local(songs, StrategyTitle), err
		}})
		if p := firstPhrase(transcript); p != "" {
			out = append(out, strategy{StrategyPhrase, func(ctx context.Context) ([]library.Match, error) {
				songs, err := o.store.SearchLyrics(ctx, o.org, p)
				return local(songs, StrategyPhrase), err
			}})
		}
		if w := firstWords(transcript, firstWordsN); w != "" {
			out = append(out, strategy{StrategyFirstWords, func(ctx context.Context) ([]library.Match, error) {
				songs, err := o.store.SearchLyrics(ctx, o.org, w)
				return local(songs, StrategyFirstWords), err
			}})
		}
		if words := distinctiveWords(transcript); words != nil {
			out = append(out, strategy{StrategyDistinctive, func(ctx context.Context) ([]library.Match, error) {
				songs, err := o.store.SearchAllWords(ctx, o.org, words)
				return local(songs, StrategyDistinctive), err
			}})
		}
	}
	if o.lyrics != nil {
		out = append(out, strategy{StrategyExternal, func(ctx context.Context) ([]library.Match, error) {
			return o.searchExternal(ctx, transcript)
		}})
	}
	if o.llm != nil && s.LLMIdentify {
		out = append(out, strategy{StrategyLLM, func(ctx context.Context) ([]library.Match, error) {
			return o.identifyLLM(ctx, transcript)
		}})
	}
	return out
}

func (o *Orchestrator) searchExternal(ctx context.Context, transcript string) ([]library.Match, error) {
	var results []lyrics.Result
	call := func() error {
		var err error
		results, err = o.lyrics.Search(ctx, transcript)
		return err
	}
	var err error
	if o.breaker != nil {
		err = o.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	out := make([]library.Match, 0, len(results))
	for _, r := range results {
		out = append(out, library.Match{
			Song: library.Song{
				ID:         r.Source + ":" + r.ID,
				Title:      r.Title,
				Artist:     r.Artist,
				Lyrics:     r.Lyrics,
				Source:     r.Source,
				ExternalID: r.ID,
			},
			Confidence: ExternalConfidence,
			Source:     r.Source,
			Strategy:   StrategyExternal,
		})
	}
	return out, nil
}

func local(songs []library.Song, strategy string) []library.Match {
	out := make([]library.Match, 0, len(songs))
	for _, s := range songs {
		out = append(out, library.Match{
			Song:       s,
			Confidence: LocalConfidence,
			Source:     library.SourceLocal,
			Strategy:   strategy,
		})
	}
	return out
}

// merge flattens per-strategy results in order, keeps the first match per
// title and artist, ranks local matches first then by confidence, and caps
// the list at limit.
func merge(results [][]library.Match, limit int) []library.Match {
	seen := make(map[string]struct{})
	var out []library.Match
	for _, ms := range results {
		for _, m := range ms {
			key := library.Key(m.Song.Title, m.Song.Artist)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b library.Match) int {
		if a.Local() != b.Local() {
			if a.Local() {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrTranscription):
		return "transcription_failed"
	case errors.Is(err, ErrUnclear):
		return "unclear"
	default:
		return "error"
	}
}

func outcomeOf(matches []library.Match) string {
	if len(matches) == 0 {
		return "no_match"
	}
	return "matched"
}
