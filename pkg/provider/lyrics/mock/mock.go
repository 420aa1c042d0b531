// Package mock provides test doubles for the lyrics package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/versecue/pkg/provider/lyrics"
)

var (
	_ lyrics.Provider = (*Provider)(nil)
	_ lyrics.Fetcher  = (*Provider)(nil)
)

// FetchCall records one Fetch invocation.
type FetchCall struct {
	Title  string
	Artist string
}

// Provider is a mock lyrics.Provider and lyrics.Fetcher.
type Provider struct {
	mu sync.Mutex

	// SearchFunc, if set, overrides Results and SearchErr.
	SearchFunc func(ctx context.Context, query string) ([]lyrics.Result, error)
	Results    []lyrics.Result
	SearchErr  error

	// Lyrics maps a title to the text Fetch returns.
	Lyrics   map[string]string
	FetchErr error

	queries []string
	fetches []FetchCall
}

// Search records the query and returns the canned results.
func (p *Provider) Search(ctx context.Context, query string) ([]lyrics.Result, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	fn, res, err := p.SearchFunc, p.Results, p.SearchErr
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, query)
	}
	return append([]lyrics.Result(nil), res...), err
}

// Fetch records the call and returns Lyrics[title].
func (p *Provider) Fetch(_ context.Context, title, artist string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches = append(p.fetches, FetchCall{Title: title, Artist: artist})
	if p.FetchErr != nil {
		return "", p.FetchErr
	}
	return p.Lyrics[title], nil
}

// Queries returns every Search query.
func (p *Provider) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

// Fetches returns every Fetch call.
func (p *Provider) Fetches() []FetchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]FetchCall(nil), p.fetches...)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = nil
	p.fetches = nil
}
