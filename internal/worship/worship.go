// Package worship identifies the song a congregation is singing from a short
// recorded snippet.
//
// The [Orchestrator] transcribes the snippet and fans a set of search
// strategies out concurrently: four exact-containment queries against the
// organization's local library, an external lyric search, and optionally a
// language-model guess. Results are merged, deduplicated by title and artist,
// ranked with local matches first and capped.
//
// The [Recorder] owns the operator-facing recording lifecycle:
//
//	idle → recording → transcribing → searching → complete | error
package worship

import (
	"errors"
	"time"

	"github.com/MrWong99/versecue/internal/library"
)

// Tunable defaults.
const (
	DefaultMinAudioBytes      = 1000
	DefaultMinTranscriptChars = 10
	DefaultMaxResults         = 8
	DefaultAutoStop           = 10 * time.Second
	DefaultStrategyTimeout    = 3 * time.Second
)

// Confidence assigned per match source.
const (
	LocalConfidence    = 1.0
	ExternalConfidence = 0.9

	// LLMConfidenceCap bounds a model's self-reported confidence so a guess
	// never outranks an external search hit.
	LLMConfidenceCap   = 0.9
	LLMConfidenceFloor = 0.75
)

// Strategy names, in merge order.
const (
	StrategyTitle       = "title"
	StrategyPhrase      = "phrase"
	StrategyFirstWords  = "first_words"
	StrategyDistinctive = "distinctive"
	StrategyExternal    = "external"
	StrategyLLM         = "llm"
)

// Terminal identification failures. [Reason] maps each to operator-facing
// text.
var (
	ErrTooShort      = errors.New("worship: recording too short")
	ErrTranscription = errors.New("worship: transcription failed")
	ErrUnclear       = errors.New("worship: transcript too short")
	ErrNoMatch       = errors.New("worship: no matching song")

	ErrNotRecording = errors.New("worship: not recording")
	ErrNoSuchMatch  = errors.New("worship: no such match")
)

// Reason returns the short, actionable message shown to the operator for a
// failed identification.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooShort):
		return "Recording too short. Record a few more seconds."
	case errors.Is(err, ErrTranscription):
		return "Could not transcribe audio. Try again."
	case errors.Is(err, ErrUnclear):
		return "Could not hear clearly, try again."
	case errors.Is(err, ErrNoMatch):
		return "Could not identify the song. Try a different section."
	default:
		return "Song detection failed."
	}
}

// Status is a recording lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRecording    Status = "recording"
	StatusTranscribing Status = "transcribing"
	StatusSearching    Status = "searching"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// Busy reports whether background work is in flight.
func (s Status) Busy() bool {
	return s == StatusTranscribing || s == StatusSearching
}

// Session is a snapshot of the recording lifecycle.
type Session struct {
	Status        Status          `json:"status"`
	Elapsed       time.Duration   `json:"elapsed"`
	BufferedBytes int             `json:"buffered_bytes"`
	Transcript    string          `json:"transcript,omitempty"`
	Matches       []library.Match `json:"matches"`
	Reason        string          `json:"reason,omitempty"`
}
