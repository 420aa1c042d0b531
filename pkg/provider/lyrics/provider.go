// Package lyrics defines the external lyric search contract used by the
// worship song matcher when the local library has no answer.
//
// A [Provider] takes a free-text snippet (usually a transcribed line of a
// chorus) and returns candidate songs. A [Fetcher] looks up the full lyrics
// of a known title, for providers that only return metadata.
package lyrics

import "context"

// Result is one song returned by an external service.
type Result struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	// Lyrics is empty when the service only returns metadata.
	Lyrics string `json:"lyrics,omitempty"`
	URL    string `json:"url,omitempty"`
	// Source names the service, e.g. "lrclib".
	Source string `json:"source"`
}

// Provider searches an external lyrics service.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Fetcher retrieves plain lyrics for a title and artist. It returns "" and a
// nil error when nothing is found.
type Fetcher interface {
	Fetch(ctx context.Context, title, artist string) (string, error)
}
