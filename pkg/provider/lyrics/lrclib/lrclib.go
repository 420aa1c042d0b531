// Package lrclib implements [lyrics.Provider] and [lyrics.Fetcher] against
// the public LRCLIB API. No API key is required.
package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/versecue/pkg/provider/lyrics"
)

// Source tags results from this provider.
const Source = "lrclib"

const defaultBaseURL = "https://lrclib.net"

var (
	_ lyrics.Provider = (*Provider)(nil)
	_ lyrics.Fetcher  = (*Provider)(nil)
)

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithUserAgent sets the User-Agent LRCLIB asks clients to identify with.
func WithUserAgent(ua string) Option {
	return func(p *Provider) { p.userAgent = ua }
}

// Provider queries LRCLIB.
type Provider struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// New returns a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:   defaultBaseURL,
		userAgent: "versecue",
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type track struct {
	ID          int64  `json:"id"`
	TrackName   string `json:"trackName"`
	ArtistName  string `json:"artistName"`
	PlainLyrics string `json:"plainLyrics"`
}

// Search looks query up in both titles and lyrics.
func (p *Provider) Search(ctx context.Context, query string) ([]lyrics.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	tracks, err := p.search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]lyrics.Result, 0, len(tracks))
	for _, t := range tracks {
		if t.TrackName == "" {
			continue
		}
		out = append(out, lyrics.Result{
			ID:     strconv.FormatInt(t.ID, 10),
			Title:  t.TrackName,
			Artist: t.ArtistName,
			Lyrics: t.PlainLyrics,
			Source: Source,
		})
	}
	return out, nil
}

// Fetch returns the plain lyrics of the best hit for title and artist.
func (p *Provider) Fetch(ctx context.Context, title, artist string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", nil
	}
	tracks, err := p.search(ctx, strings.TrimSpace(title+" "+artist))
	if err != nil {
		return "", err
	}
	for _, t := range tracks {
		if t.PlainLyrics != "" {
			return t.PlainLyrics, nil
		}
	}
	return "", nil
}

func (p *Provider) search(ctx context.Context, q string) ([]track, error) {
	u := p.baseURL + "/api/search?q=" + url.QueryEscape(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("lrclib: create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lrclib: search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("lrclib: search: HTTP %d", resp.StatusCode)
	}

	var tracks []track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		return nil, fmt.Errorf("lrclib: decode response: %w", err)
	}
	return tracks, nil
}
