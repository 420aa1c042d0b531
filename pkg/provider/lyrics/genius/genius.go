// Package genius implements [lyrics.Provider] against the Genius search API.
// Genius returns song metadata only; pair it with a [lyrics.Fetcher] to get
// lyrics for display.
package genius

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/versecue/pkg/provider/lyrics"
)

// Source tags results from this provider.
const Source = "genius"

const (
	defaultBaseURL = "https://api.genius.com"
	defaultPerPage = 10

	// minQuery is the shortest query worth sending; shorter snippets match
	// thousands of songs.
	minQuery = 5
)

var _ lyrics.Provider = (*Provider)(nil)

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

// WithPerPage sets how many hits to request. Default: 10.
func WithPerPage(n int) Option {
	return func(p *Provider) { p.perPage = n }
}

// Provider queries Genius.
type Provider struct {
	token   string
	baseURL string
	perPage int
	client  *http.Client
}

// New returns a Provider authenticated with a client access token.
func New(token string, opts ...Option) (*Provider, error) {
	if token == "" {
		return nil, errors.New("genius: access token must not be empty")
	}
	p := &Provider{
		token:   token,
		baseURL: defaultBaseURL,
		perPage: defaultPerPage,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type searchResponse struct {
	Response struct {
		Hits []struct {
			Result struct {
				ID            int64  `json:"id"`
				Title         string `json:"title"`
				FullTitle     string `json:"full_title"`
				URL           string `json:"url"`
				PrimaryArtist struct {
					Name string `json:"name"`
				} `json:"primary_artist"`
			} `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

// Search runs a Genius full-text search. Queries shorter than five
// characters return no results without a request.
func (p *Provider) Search(ctx context.Context, query string) ([]lyrics.Result, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQuery {
		return nil, nil
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("per_page", strconv.Itoa(p.perPage))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("genius: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genius: search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("genius: search: HTTP %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("genius: decode response: %w", err)
	}

	out := make([]lyrics.Result, 0, len(sr.Response.Hits))
	for _, h := range sr.Response.Hits {
		r := h.Result
		title := r.Title
		if title == "" {
			title = r.FullTitle
		}
		if title == "" {
			continue
		}
		artist := r.PrimaryArtist.Name
		if artist == "" {
			artist = "Unknown"
		}
		out = append(out, lyrics.Result{
			ID:     strconv.FormatInt(r.ID, 10),
			Title:  title,
			Artist: artist,
			URL:    r.URL,
			Source: Source,
		})
	}
	return out, nil
}
