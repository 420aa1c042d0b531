// Package stt defines the speech-to-text contracts VerseCue consumes.
//
// Two shapes exist. A streaming [Provider] feeds sermon mode: a
// [SessionHandle] accepts live PCM and emits interim partials and
// authoritative finals. A batch [Transcriber] serves worship mode: it turns
// one short recorded [audio.Clip] into text.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/versecue/pkg/audio"
)

// ErrNotSupported is returned by optional operations a backend lacks.
var ErrNotSupported = errors.New("stt: not supported")

// Transcript is one recognition result.
type Transcript struct {
	Text    string
	IsFinal bool

	// Confidence in [0, 1]; zero when the backend does not report one.
	Confidence float64

	// Words holds per-word timing when the backend provides it.
	Words []WordDetail

	// Timestamp is the utterance start relative to session start.
	Timestamp time.Duration
	Duration  time.Duration
}

// WordDetail is per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost biases recognition toward a term, such as a Bible book name
// that general models tend to mishear.
type KeywordBoost struct {
	Keyword string
	// Boost intensity on the provider's own scale.
	Boost float64
}

// StreamConfig describes the audio and recognition hints of a new session.
type StreamConfig struct {
	// SampleRate in Hz. Zero selects the provider default.
	SampleRate int
	// Channels; zero means mono.
	Channels int
	// Language is a BCP-47 tag. Empty selects the provider default.
	Language string
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session. Callers must Close it.
type SessionHandle interface {
	// SendAudio delivers PCM16 matching the session's StreamConfig. It
	// errors after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim results for passive display. It is closed when
	// the session ends.
	Partials() <-chan Transcript

	// Finals emits committed results, the only ones fed to detection. It is
	// closed when the session ends, including when the remote side ends the
	// stream on its own.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword hints, or returns ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close ends the session. It is idempotent.
	Close() error
}

// Provider opens streaming sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// Transcriber converts one short clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
