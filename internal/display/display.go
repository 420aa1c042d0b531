// Package display pushes approved content to the public display surfaces.
//
// The review queue calls [Surface.Push] exactly once per display transition.
// Surfaces never retry: a failed push is the caller's to log. [Hub] fans a
// payload out to browser clients over WebSocket and replays the latest one to
// late joiners; the discord subpackage mirrors it into a channel; [Multi]
// combines several surfaces.
package display

import (
	"context"
	"errors"
	"time"
)

// Payload types.
const (
	TypeDisplay = "display"
	TypeClear   = "clear"
)

// Payload kinds.
const (
	KindScripture = "scripture"
	KindSong      = "song"
)

// Song is the song part of a display payload.
type Song struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Lyrics string `json:"lyrics,omitempty"`
}

// Payload is one message sent to the display surfaces.
type Payload struct {
	Type        string    `json:"type"`
	Kind        string    `json:"kind,omitempty"`
	ItemID      string    `json:"item_id,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Text        string    `json:"text,omitempty"`
	Translation string    `json:"translation,omitempty"`
	Song        *Song     `json:"song,omitempty"`
	At          time.Time `json:"at"`
}

// Clear returns a payload that blanks the display.
func Clear(at time.Time) Payload {
	return Payload{Type: TypeClear, At: at}
}

// Surface receives display payloads.
type Surface interface {
	Push(ctx context.Context, p Payload) error
}

// SurfaceFunc adapts a function to [Surface].
type SurfaceFunc func(ctx context.Context, p Payload) error

// Push implements [Surface].
func (f SurfaceFunc) Push(ctx context.Context, p Payload) error { return f(ctx, p) }

// Multi pushes to every surface in order and joins their errors. A failing
// surface does not stop the others.
type Multi []Surface

var _ Surface = Multi(nil)

// Push implements [Surface].
func (m Multi) Push(ctx context.Context, p Payload) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Push(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a [Surface] that drops every payload.
var Discard Surface = SurfaceFunc(func(context.Context, Payload) error { return nil })
