// Package bible resolves scripture references to verse text.
//
// [Local] serves a translation from a JSON file shaped
// book → chapter → verse → text, the layout of the public-domain KJV dumps.
// Book keys may use any spelling [scripture.Resolve] understands.
package bible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/versecue/internal/scripture"
)

// DefaultTranslation labels text from a file with no explicit translation.
const DefaultTranslation = "KJV"

// ErrNotFound is returned when the passage is absent from the data.
var ErrNotFound = errors.New("bible: passage not found")

// Verse is a resolved passage.
type Verse struct {
	Reference   scripture.Reference `json:"reference"`
	Display     string              `json:"display"`
	Text        string              `json:"text"`
	Translation string              `json:"translation"`
}

// Provider looks up passages.
type Provider interface {
	Lookup(ctx context.Context, ref scripture.Reference) (Verse, error)
}

// Option configures a [Local].
type Option func(*Local)

// WithTranslation sets the translation label. Default: "KJV".
func WithTranslation(name string) Option {
	return func(l *Local) { l.translation = name }
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Local) { l.log = log }
}

// chapters maps chapter → verse → text.
type chapters map[int]map[int]string

// Local is a file-backed [Provider]. The file is read on first use and kept
// in memory. Local is safe for concurrent use.
type Local struct {
	path        string
	translation string
	log         *slog.Logger

	once    sync.Once
	loadErr error
	books   map[string]chapters
}

var _ Provider = (*Local)(nil)

// NewLocal returns a Local reading path lazily.
func NewLocal(path string, opts ...Option) *Local {
	l := &Local{path: path, translation: DefaultTranslation, log: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Parse returns a Local populated from r.
func Parse(r io.Reader, opts ...Option) (*Local, error) {
	l := NewLocal("", opts...)
	books, err := l.decode(r)
	if err != nil {
		return nil, err
	}
	l.once.Do(func() { l.books = books })
	return l, nil
}

// Translation returns the translation label.
func (l *Local) Translation() string { return l.translation }

// Load reads the file now instead of on first lookup.
func (l *Local) Load() error {
	l.once.Do(func() {
		f, err := os.Open(l.path)
		if err != nil {
			l.loadErr = fmt.Errorf("bible: open %s: %w", l.path, err)
			return
		}
		defer f.Close()
		l.books, l.loadErr = l.decode(f)
		if l.loadErr == nil {
			l.log.Info("bible loaded", "path", l.path, "translation", l.translation, "books", len(l.books))
		}
	})
	return l.loadErr
}

func (l *Local) decode(r io.Reader) (map[string]chapters, error) {
	var raw map[string]map[string]map[string]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("bible: decode: %w", err)
	}
	books := make(map[string]chapters, len(raw))
	for name, chs := range raw {
		b, ok := scripture.Resolve(name)
		if !ok {
			l.log.Warn("bible: skipping unknown book", "book", name)
			continue
		}
		out := make(chapters, len(chs))
		for c, verses := range chs {
			cn, err := strconv.Atoi(c)
			if err != nil {
				return nil, fmt.Errorf("bible: %s chapter %q: %w", name, c, err)
			}
			vm := make(map[int]string, len(verses))
			for v, text := range verses {
				vn, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("bible: %s %d verse %q: %w", name, cn, v, err)
				}
				vm[vn] = text
			}
			out[cn] = vm
		}
		books[b.Name] = out
	}
	return books, nil
}

// Lookup resolves ref. A chapter reference yields its first verse. Missing
// verses inside a range are skipped; a range with no verses at all is
// [ErrNotFound].
func (l *Local) Lookup(ctx context.Context, ref scripture.Reference) (Verse, error) {
	if err := ctx.Err(); err != nil {
		return Verse{}, err
	}
	if err := l.Load(); err != nil {
		return Verse{}, err
	}
	b, ok := scripture.Resolve(ref.Book)
	if !ok {
		return Verse{}, fmt.Errorf("%w: unknown book %q", ErrNotFound, ref.Book)
	}
	ch, ok := l.books[b.Name][ref.Chapter]
	if !ok {
		return Verse{}, fmt.Errorf("%w: %s %d", ErrNotFound, b.Name, ref.Chapter)
	}

	start := max(ref.VerseStart, 1)
	end := max(ref.VerseEnd, start)
	parts := make([]string, 0, end-start+1)
	for v := start; v <= end; v++ {
		if text, ok := ch[v]; ok {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return Verse{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return Verse{
		Reference:   ref,
		Display:     ref.String(),
		Text:        clean(strings.Join(parts, " ")),
		Translation: l.translation,
	}, nil
}

// Text implements queue.TextResolver.
func (l *Local) Text(ctx context.Context, ref scripture.Reference) (string, string, error) {
	v, err := l.Lookup(ctx, ref)
	if err != nil {
		return "", "", err
	}
	return v.Text, v.Translation, nil
}

var (
	annotation = regexp.MustCompile(`\{[^}]*\}`)
	spaces     = regexp.MustCompile(`\s+`)
)

// clean drops translator annotations in braces and collapses whitespace.
func clean(s string) string {
	s = annotation.ReplaceAllString(s, "")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
