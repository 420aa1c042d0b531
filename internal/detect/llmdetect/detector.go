// Package llmdetect implements probabilistic scripture-reference detection
// backed by a language model.
//
// The [Detector] sends a finalized transcript fragment to an [llm.Provider]
// with a conservative system prompt and decodes the structured reply into
// [scripture.Candidate] values. The model's claims are never trusted: every
// entry is decoded field by field, resolved through the book table and
// bounds-checked before it is kept, and anything below the confidence floor
// is dropped.
//
// Detection failure never surfaces to the caller. Network errors, timeouts,
// malformed replies and an open circuit all yield a nil slice so the
// deterministic path keeps working on its own.
package llmdetect

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/versecue/internal/resilience"
	"github.com/MrWong99/versecue/internal/scripture"
	"github.com/MrWong99/versecue/pkg/provider/llm"
)

const (
	// DefaultFloor is the minimum confidence for fragment detection.
	DefaultFloor = 0.80

	// DefaultSearchFloor is the minimum confidence for query-driven search.
	DefaultSearchFloor = 0.75

	// DefaultMinChars is the shortest fragment worth sending to the model.
	DefaultMinChars = 20

	// DefaultTimeout bounds one model call.
	DefaultTimeout = 8 * time.Second
	defaultTemperature = 0.1
	defaultMaxTokens   = 512
)

const detectPrompt = `You detect Bible references in live sermon transcripts.

A missed reference is much better than a false positive. Only report a reference when the speaker:
- cites it explicitly (book, chapter, verse), possibly garbled by speech recognition, or
- quotes a passage closely enough that the exact verse is unmistakable, or
- names a specific biblical story or event that maps to a specific passage.

Ignore greetings, announcements, prayers, generic devotional language ("God is good", "praise the Lord") and vague allusions.

Respond with ONLY a JSON object (no markdown, no prose):
{"references":[{"book":"<canonical book name>","chapter":<int>,"verseStart":<int or null>,"verseEnd":<int or null>,"confidence":<0.0-1.0>,"reasoning":"<one short sentence>"}]}

Return {"references":[]} when nothing qualifies.`

const searchPrompt = `You help a church media operator find Bible verses.

The operator describes a verse in their own words, for example "the verse about love being patient". Return the passages that best match the description, most likely first, at most five.

Use canonical book names and real chapter and verse numbers. Do not invent references.

Respond with ONLY a JSON object (no markdown, no prose):
{"references":[{"book":"<canonical book name>","chapter":<int>,"verseStart":<int or null>,"verseEnd":<int or null>,"confidence":<0.0-1.0>,"reasoning":"<one short sentence>"}]}`

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithFloor sets the confidence floor for [Detector.Detect]. Default: 0.80.
func WithFloor(f float64) Option {
	return func(d *Detector) { d.floor = f }
}

// WithSearchFloor sets the confidence floor for [Detector.Search].
// Default: 0.75.
func WithSearchFloor(f float64) Option {
	return func(d *Detector) { d.searchFloor = f }
}

// WithMinChars sets the minimum fragment length accepted by
// [Detector.Detect]. Default: 20.
func WithMinChars(n int) Option {
	return func(d *Detector) { d.minChars = n }
}

// WithTimeout bounds each model call. Default: 8s.
func WithTimeout(t time.Duration) Option {
	return func(d *Detector) { d.timeout = t }
}

// WithBreaker routes model calls through cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(d *Detector) { d.breaker = cb }
}

// WithLogger sets the logger used for degraded calls.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// Detector finds scripture references with a language model. It is safe for
// concurrent use.
type Detector struct {
	llm      llm.Provider
	minChars int
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	log      *slog.Logger

	mu          sync.RWMutex
	floor       float64
	searchFloor float64
}

// New returns a [Detector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Detector {
	d := &Detector{
		llm:         provider,
		floor:       DefaultFloor,
		searchFloor: DefaultSearchFloor,
		minChars:    DefaultMinChars,
		timeout:     DefaultTimeout,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// MinChars reports the shortest fragment Detect will send to the model.
func (d *Detector) MinChars() int { return d.minChars }

// Detect returns the validated references found in a finalized transcript
// fragment. Fragments shorter than the configured minimum are rejected
// without a model call.
func (d *Detector) Detect(ctx context.Context, text string) []scripture.Candidate {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < d.minChars {
		return nil
	}
	floor, _ := d.Floors()
	return d.run(ctx, "detect", detectPrompt, "Transcript fragment:\n"+text, floor)
}

// Search answers a free-text operator query with validated references.
func (d *Detector) Search(ctx context.Context, query string) []scripture.Candidate {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	_, floor := d.Floors()
	return d.run(ctx, "search", searchPrompt, "Description:\n"+query, floor)
}

// Floors returns the detection and search confidence floors.
func (d *Detector) Floors() (detect, search float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.floor, d.searchFloor
}

// SetFloors replaces both confidence floors.
func (d *Detector) SetFloors(detect, search float64) {
	d.mu.Lock()
	d.floor, d.searchFloor = detect, search
	d.mu.Unlock()
}

func (d *Detector) run(ctx context.Context, op, system, user string, floor float64) []scripture.Candidate {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
		Temperature:  defaultTemperature,
		MaxTokens:    defaultMaxTokens,
		JSONMode:     true,
	}

	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = d.llm.Complete(ctx, req)
		return err
	}

	var err error
	if d.breaker != nil {
		err = d.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		d.log.Warn("llm detection degraded to empty result", "op", op, "model", d.llm.Model(), "err", err)
		return nil
	}
	if resp == nil {
		return nil
	}

	cands, err := parseResponse(resp.Content, floor)
	if err != nil {
		d.log.Warn("llm detection reply discarded", "op", op, "model", d.llm.Model(), "err", err)
		return nil
	}
	return cands
}

// parseResponse decodes the model reply into validated candidates. Entries
// that fail to decode, resolve or validate are dropped individually; only a
// reply that is not a JSON object at all is an error.
func parseResponse(content string, floor float64) ([]scripture.Candidate, error) {
	var envelope struct {
		References []json.RawMessage `json:"references"`
	}
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &envelope); err != nil {
		return nil, fmt.Errorf("llmdetect: parse response: %w", err)
	}

	var (
		out  []scripture.Candidate
		seen = make(map[string]struct{})
	)
	for _, raw := range envelope.References {
		c, ok := decodeEntry(raw)
		if !ok || !(c.Confidence >= floor) {
			continue
		}
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func decodeEntry(raw json.RawMessage) (scripture.Candidate, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return scripture.Candidate{}, false
	}

	book, _ := stringField(fields, "book")
	chapter, okCh := intField(fields, "chapter")
	verseStart, _ := intField(fields, "verseStart", "verse_start", "verse")
	verseEnd, _ := intField(fields, "verseEnd", "verse_end")
	conf, okConf := floatField(fields, "confidence")
	reasoning, _ := stringField(fields, "reasoning", "rationale")

	// Some models only fill the combined "reference" string.
	if (book == "" || !okCh) && fields["reference"] != nil {
		if s, ok := stringField(fields, "reference"); ok {
			book, chapter, verseStart, verseEnd, okCh = splitReference(s)
		}
	}
	if book == "" || !okCh || !okConf || !(conf >= 0 && conf <= 1) {
		return scripture.Candidate{}, false
	}

	ref, ok := scripture.NewReference(book, chapter, verseStart, verseEnd)
	if !ok {
		return scripture.Candidate{}, false
	}
	c := scripture.NewCandidate(ref, conf, scripture.OriginProbabilistic)
	c.Rationale = strings.TrimSpace(reasoning)
	return c, true
}

func stringField(fields map[string]json.RawMessage, names ...string) (string, bool) {
	for _, n := range names {
		raw, ok := fields[n]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s, true
		}
	}
	return "", false
}

// intField accepts JSON numbers and numeric strings. null and absent fields
// report false.
func intField(fields map[string]json.RawMessage, names ...string) (int, bool) {
	for _, n := range names {
		raw, ok := fields[n]
		if !ok || string(raw) == "null" {
			continue
		}
		var f float64
		if json.Unmarshal(raw, &f) == nil && f == float64(int(f)) {
			return int(f), true
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func floatField(fields map[string]json.RawMessage, names ...string) (float64, bool) {
	for _, n := range names {
		raw, ok := fields[n]
		if !ok || string(raw) == "null" {
			continue
		}
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			return f, true
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
				return v, true
			}
		}
	}
	return 0, false
}

// splitReference parses "Book C:V-E" as returned in a combined reference
// field.
func splitReference(s string) (book string, chapter, verseStart, verseEnd int, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, ' ')
	if i <= 0 {
		return "", 0, 0, 0, false
	}
	book, nums := s[:i], s[i+1:]

	chPart, vPart, hasVerse := strings.Cut(nums, ":")
	ch, err := strconv.Atoi(chPart)
	if err != nil {
		return "", 0, 0, 0, false
	}
	if !hasVerse {
		return book, ch, 0, 0, true
	}
	startPart, endPart, hasEnd := strings.Cut(vPart, "-")
	vs, err := strconv.Atoi(startPart)
	if err != nil {
		return "", 0, 0, 0, false
	}
	if hasEnd {
		ve, err := strconv.Atoi(endPart)
		if err != nil {
			return "", 0, 0, 0, false
		}
		return book, ch, vs, ve, true
	}
	return book, ch, vs, 0, true
}

// stripMarkdown removes optional markdown code fences that some models wrap
// around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
