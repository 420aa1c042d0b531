// Package librarytest provides a shared behaviour suite that every
// library.Store backend runs in its own tests.
package librarytest

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/versecue/internal/library"
)

// Org is the organization the fixture songs belong to.
const Org = "grace-chapel"

// Songs is the fixture library seeded into each backend under test.
var Songs = []library.Song{
	{
		ID: "amazing-grace", Organization: Org, Title: "Amazing Grace", Artist: "John Newton",
		Lyrics: "Amazing grace, how sweet the sound\nThat saved a wretch like me\nI once was lost, but now am found\nWas blind, but now I see",
	},
	{
		ID: "how-great", Organization: Org, Title: "How Great Thou Art", Artist: "Carl Boberg",
		Lyrics: "O Lord my God, when I in awesome wonder\nConsider all the worlds Thy hands have made",
	},
	{
		ID: "oceans", Organization: Org, Title: "Oceans (Where Feet May Fail)", Artist: "Hillsong United",
		Lyrics: "You call me out upon the waters\nThe great unknown where feet may fail",
	},
	{
		ID: "ten-thousand", Organization: Org, Title: "10,000 Reasons", Artist: "Matt Redman",
		Lyrics: "Bless the Lord, O my soul, O my soul\nWorship His holy name",
	},
	{
		ID: "yes", Organization: Org, Title: "Yes", Artist: "Local Band",
		Lyrics: "Yes Lord, yes Lord, yes yes Lord",
	},
	{
		ID: "chains", Organization: "other-church", Title: "Amazing Grace (My Chains Are Gone)", Artist: "Chris Tomlin",
		Lyrics: "My chains are gone, I've been set free",
	},
}

// Opener returns a backend seeded with songs.
type Opener func(t *testing.T, songs []library.Song) library.Store

// Run exercises the [library.Store] contract against the backend returned by
// open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	ctx := context.Background()
	s := open(t, Songs)

	ids := func(songs []library.Song) []string {
		out := make([]string, len(songs))
		for i, song := range songs {
			out[i] = song.ID
		}
		return out
	}
	expect := func(t *testing.T, op string, got []library.Song, err error, want ...string) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", op, err)
		}
		g := ids(got)
		if len(g) != len(want) {
			t.Fatalf("%s: got %v, want %v", op, g, want)
		}
		for i := range want {
			if g[i] != want[i] {
				t.Errorf("%s[%d] = %q, want %q", op, i, g[i], want[i])
			}
		}
	}

	t.Run("title contains query", func(t *testing.T) {
		got, err := s.SearchTitle(ctx, Org, "Amazing Grace")
		expect(t, "SearchTitle", got, err, "amazing-grace")
	})
	t.Run("query contains title", func(t *testing.T) {
		got, err := s.SearchTitle(ctx, Org, "we will sing how great thou art tonight")
		expect(t, "SearchTitle", got, err, "how-great")
	})
	t.Run("short title not reverse matched", func(t *testing.T) {
		got, err := s.SearchTitle(ctx, Org, "oh yes lord we praise you")
		expect(t, "SearchTitle", got, err)
	})
	t.Run("title punctuation folded", func(t *testing.T) {
		got, err := s.SearchTitle(ctx, Org, "oceans where feet")
		expect(t, "SearchTitle", got, err, "oceans")
	})
	t.Run("lyrics phrase", func(t *testing.T) {
		got, err := s.SearchLyrics(ctx, Org, "That saved a wretch like me!")
		expect(t, "SearchLyrics", got, err, "amazing-grace")
	})
	t.Run("lyrics across line break", func(t *testing.T) {
		got, err := s.SearchLyrics(ctx, Org, "upon the waters the great unknown")
		expect(t, "SearchLyrics", got, err, "oceans")
	})
	t.Run("all words", func(t *testing.T) {
		got, err := s.SearchAllWords(ctx, Org, []string{"waters", "UNKNOWN", "feet"})
		expect(t, "SearchAllWords", got, err, "oceans")
	})
	t.Run("all words requires every word", func(t *testing.T) {
		got, err := s.SearchAllWords(ctx, Org, []string{"waters", "wretch"})
		expect(t, "SearchAllWords", got, err)
	})
	t.Run("empty queries", func(t *testing.T) {
		got, err := s.SearchTitle(ctx, Org, " ... ")
		expect(t, "SearchTitle(blank)", got, err)
		got, err = s.SearchAllWords(ctx, Org, nil)
		expect(t, "SearchAllWords(nil)", got, err)
	})
	t.Run("organization scope", func(t *testing.T) {
		got, err := s.SearchLyrics(ctx, Org, "my chains are gone")
		expect(t, "SearchLyrics", got, err)
		got, err = s.SearchLyrics(ctx, "other-church", "my chains are gone")
		expect(t, "SearchLyrics(other)", got, err, "chains")
	})
	t.Run("get", func(t *testing.T) {
		song, err := s.Get(ctx, Org, "ten-thousand")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if song.Title != "10,000 Reasons" || song.Artist != "Matt Redman" || song.Source != library.SourceLocal {
			t.Errorf("Get = %+v", song)
		}
		if _, err := s.Get(ctx, Org, "chains"); !errors.Is(err, library.ErrNotFound) {
			t.Errorf("Get(other org) err = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, Org, "missing"); !errors.Is(err, library.ErrNotFound) {
			t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
		}
	})
	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
