// Package library defines the organization's local worship song library and
// the read-only search interface the song matcher uses against it.
//
// Backends are [MemStore] (optionally seeded from a YAML file), and the SQL
// stores in the postgres and sqlite subpackages. All backends compare text in
// the folded form produced by [Fold], so a transcript with stray punctuation
// still matches stored lyrics.
package library

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// SourceLocal tags songs and matches that come from the local library.
const SourceLocal = "local"

// ErrNotFound is returned by Get when no song with that id exists.
var ErrNotFound = errors.New("library: song not found")

// Song is one entry in an organization's library.
type Song struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Artist       string `json:"artist,omitempty" yaml:"artist"`
	Lyrics       string `json:"lyrics,omitempty" yaml:"lyrics"`
	Source       string `json:"source" yaml:"source"`
	Organization string `json:"organization,omitempty" yaml:"organization"`
	ExternalID   string `json:"external_id,omitempty" yaml:"external_id"`
}

// Match is a song proposed by the song matcher. It is transient and never
// persisted.
type Match struct {
	Song       Song    `json:"song"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Strategy   string  `json:"strategy"`
}

// Local reports whether the match came from the organization's own library.
func (m Match) Local() bool { return m.Source == SourceLocal }

// Store is the read-only query interface over a song library. Every query is
// scoped to one organization; an empty organization matches songs without
// one. Queries are folded by the store, so callers may pass raw text.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SearchTitle returns songs whose title contains query, or whose title
	// of at least [MinReverseTitle] characters is contained in query.
	SearchTitle(ctx context.Context, org, query string) ([]Song, error)

	// SearchLyrics returns songs whose lyrics contain phrase.
	SearchLyrics(ctx context.Context, org, phrase string) ([]Song, error)

	// SearchAllWords returns songs whose lyrics contain every word.
	SearchAllWords(ctx context.Context, org string, words []string) ([]Song, error)

	// Get returns one song by id or [ErrNotFound].
	Get(ctx context.Context, org, id string) (Song, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// MinReverseTitle is the shortest title that may match by being contained in
// the query. Shorter titles ("Oh", "Yes") occur inside almost any sentence.
const MinReverseTitle = 4

// SearchLimit caps the rows returned by a single store query.
const SearchLimit = 20

// Fold lower-cases s, turns every run of non-alphanumeric runes into a single
// space and trims the result. Apostrophes are dropped so "Thou'rt" and
// "thourt" fold the same way.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Key is the dedup identity of a song: folded title and artist with every
// non-alphanumeric rune removed.
func Key(title, artist string) string {
	return strings.ReplaceAll(Fold(title)+Fold(artist), " ", "")
}
