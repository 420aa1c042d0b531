package library

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var _ Store = (*MemStore)(nil)

type indexedSong struct {
	song   Song
	title  string
	lyrics string
}

// MemStore is a thread-safe, in-memory [Store]. Songs are kept in insertion
// order so search results are stable.
type MemStore struct {
	mu    sync.RWMutex
	songs []indexedSong
	byID  map[string]int
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]int)}
}

// Add inserts or replaces song. A song without an id gets a random one.
func (s *MemStore) Add(song Song) Song {
	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	if song.Source == "" {
		song.Source = SourceLocal
	}
	idx := indexedSong{song: song, title: Fold(song.Title), lyrics: Fold(song.Lyrics)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[song.ID]; ok {
		s.songs[i] = idx
		return song
	}
	s.byID[song.ID] = len(s.songs)
	s.songs = append(s.songs, idx)
	return song
}

// Len returns the number of songs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.songs)
}

// All returns every song in insertion order.
func (s *MemStore) All() []Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Song, len(s.songs))
	for i, is := range s.songs {
		out[i] = is.song
	}
	return out
}

func (s *MemStore) filter(org string, keep func(indexedSong) bool) []Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Song
	for _, is := range s.songs {
		if is.song.Organization != org || !keep(is) {
			continue
		}
		out = append(out, is.song)
		if len(out) == SearchLimit {
			break
		}
	}
	return out
}

// SearchTitle implements [Store].
func (s *MemStore) SearchTitle(_ context.Context, org, query string) ([]Song, error) {
	q := Fold(query)
	if q == "" {
		return nil, nil
	}
	padded := " " + q + " "
	return s.filter(org, func(is indexedSong) bool {
		if is.title == "" {
			return false
		}
		if strings.Contains(is.title, q) {
			return true
		}
		return len(is.title) >= MinReverseTitle && strings.Contains(padded, " "+is.title+" ")
	}), nil
}

// SearchLyrics implements [Store].
func (s *MemStore) SearchLyrics(_ context.Context, org, phrase string) ([]Song, error) {
	p := Fold(phrase)
	if p == "" {
		return nil, nil
	}
	return s.filter(org, func(is indexedSong) bool {
		return strings.Contains(is.lyrics, p)
	}), nil
}

// SearchAllWords implements [Store].
func (s *MemStore) SearchAllWords(_ context.Context, org string, words []string) ([]Song, error) {
	folded := foldWords(words)
	if len(folded) == 0 {
		return nil, nil
	}
	return s.filter(org, func(is indexedSong) bool {
		for _, w := range folded {
			if !strings.Contains(is.lyrics, w) {
				return false
			}
		}
		return true
	}), nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, org, id string) (Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok || s.songs[i].song.Organization != org {
		return Song{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.songs[i].song, nil
}

// Ping implements [Store]; the in-memory store is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }

// foldWords folds each word and drops empties and duplicates.
func foldWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		f := Fold(w)
		if f == "" || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// FoldWords is the exported form of the word folding the stores apply to
// [Store.SearchAllWords] input.
func FoldWords(words []string) []string { return foldWords(words) }
