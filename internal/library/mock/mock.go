// Package mock provides a test double for [library.Store].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/versecue/internal/library"
)

var _ library.Store = (*Store)(nil)

// SearchCall records a single search invocation.
type SearchCall struct {
	Method string
	Org    string
	Query  string
	Words  []string
}

// Store is a configurable [library.Store]. Each search method returns the
// matching Func result when set, otherwise the canned slice and error.
type Store struct {
	mu sync.Mutex

	TitleFunc  func(ctx context.Context, org, query string) ([]library.Song, error)
	LyricsFunc func(ctx context.Context, org, phrase string) ([]library.Song, error)
	WordsFunc  func(ctx context.Context, org string, words []string) ([]library.Song, error)

	TitleResult  []library.Song
	LyricsResult []library.Song
	WordsResult  []library.Song
	SearchErr    error

	Songs   map[string]library.Song
	PingErr error

	calls []SearchCall
}

func (s *Store) record(c SearchCall) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

// SearchTitle implements [library.Store].
func (s *Store) SearchTitle(ctx context.Context, org, query string) ([]library.Song, error) {
	s.record(SearchCall{Method: "SearchTitle", Org: org, Query: query})
	if s.TitleFunc != nil {
		return s.TitleFunc(ctx, org, query)
	}
	return s.TitleResult, s.SearchErr
}

// SearchLyrics implements [library.Store].
func (s *Store) SearchLyrics(ctx context.Context, org, phrase string) ([]library.Song, error) {
	s.record(SearchCall{Method: "SearchLyrics", Org: org, Query: phrase})
	if s.LyricsFunc != nil {
		return s.LyricsFunc(ctx, org, phrase)
	}
	return s.LyricsResult, s.SearchErr
}

// SearchAllWords implements [library.Store].
func (s *Store) SearchAllWords(ctx context.Context, org string, words []string) ([]library.Song, error) {
	s.record(SearchCall{Method: "SearchAllWords", Org: org, Words: append([]string(nil), words...)})
	if s.WordsFunc != nil {
		return s.WordsFunc(ctx, org, words)
	}
	return s.WordsResult, s.SearchErr
}

// Get implements [library.Store].
func (s *Store) Get(_ context.Context, _, id string) (library.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if song, ok := s.Songs[id]; ok {
		return song, nil
	}
	return library.Song{}, library.ErrNotFound
}

// Ping implements [library.Store].
func (s *Store) Ping(context.Context) error { return s.PingErr }

// Calls returns a copy of every recorded search call.
func (s *Store) Calls() []SearchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Reset clears the recorded calls.
func (s *Store) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}
