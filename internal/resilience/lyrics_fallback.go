package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/versecue/pkg/provider/lyrics"
)

// ErrNoFetcher is returned by [LyricsFallback.Fetch] when no registered
// service can fetch lyrics by title.
var ErrNoFetcher = errors.New("resilience: no lyrics fetcher registered")

// LyricsFallback implements [lyrics.Provider] and [lyrics.Fetcher] with
// failover across external lyric services. An empty result is a success and
// does not fail over.
type LyricsFallback struct {
	search *FallbackGroup[lyrics.Provider]
	fetch  *FallbackGroup[lyrics.Fetcher]
	cfg    FallbackConfig
}

var (
	_ lyrics.Provider = (*LyricsFallback)(nil)
	_ lyrics.Fetcher  = (*LyricsFallback)(nil)
)

// NewLyricsFallback returns a LyricsFallback preferring primary.
func NewLyricsFallback(primary lyrics.Provider, primaryName string, cfg FallbackConfig) *LyricsFallback {
	f := &LyricsFallback{search: NewFallbackGroup(primary, primaryName, cfg), cfg: cfg}
	f.addFetcher(primaryName, primary)
	return f
}

// AddFallback registers another service. Services that also implement
// [lyrics.Fetcher] join the fetch chain in the same order.
func (f *LyricsFallback) AddFallback(name string, p lyrics.Provider) {
	f.search.AddFallback(name, p)
	f.addFetcher(name, p)
}

func (f *LyricsFallback) addFetcher(name string, p lyrics.Provider) {
	fe, ok := p.(lyrics.Fetcher)
	if !ok {
		return
	}
	if f.fetch == nil {
		f.fetch = NewFallbackGroup(fe, name, f.cfg)
		return
	}
	f.fetch.AddFallback(name, fe)
}

// CanFetch reports whether any registered service can fetch lyrics.
func (f *LyricsFallback) CanFetch() bool { return f.fetch != nil }

// Search queries the first healthy service.
func (f *LyricsFallback) Search(ctx context.Context, query string) ([]lyrics.Result, error) {
	return ExecuteWithResult(f.search, func(p lyrics.Provider) ([]lyrics.Result, error) {
		return p.Search(ctx, query)
	})
}

// Fetch asks the first healthy fetch-capable service for the lyrics of a
// title.
func (f *LyricsFallback) Fetch(ctx context.Context, title, artist string) (string, error) {
	if f.fetch == nil {
		return "", ErrNoFetcher
	}
	return ExecuteWithResult(f.fetch, func(fe lyrics.Fetcher) (string, error) {
		return fe.Fetch(ctx, title, artist)
	})
}

// Breakers returns the search breakers in order.
func (f *LyricsFallback) Breakers() []*CircuitBreaker { return f.search.Breakers() }
