package queue

import (
	"time"

	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/scripture"
)

// State is the lifecycle state of an [Item].
type State string

// Item lifecycle states.
const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateDisplayed State = "displayed"
	StateDismissed State = "dismissed"
)

// Kind tells scripture items from song items.
type Kind string

// Item kinds.
const (
	KindScripture Kind = "scripture"
	KindSong      Kind = "song"
)

// Item is a snapshot of one queue entry. Values returned by the queue are
// copies; mutating them has no effect on the queue.
type Item struct {
	ID    string `json:"id"`
	Seq   uint64 `json:"seq"`
	State State  `json:"state"`
	Kind  Kind   `json:"kind"`

	Candidate *scripture.Candidate `json:"candidate,omitempty"`
	Song      *library.Match       `json:"song,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	ApprovedAt  time.Time `json:"approved_at,omitzero"`
	DisplayedAt time.Time `json:"displayed_at,omitzero"`

	// Text and Translation hold the resolved verse body, filled on first
	// display.
	Text        string `json:"text,omitempty"`
	Translation string `json:"translation,omitempty"`

	// Removed marks an approved item the operator withdrew. It stays in
	// History but leaves every active list.
	Removed bool `json:"removed,omitempty"`
}

// Label is the human-readable name of the item: the reference for scripture,
// the title for songs.
func (it Item) Label() string {
	switch {
	case it.Candidate != nil:
		return it.Candidate.Display
	case it.Song != nil:
		return it.Song.Song.Title
	}
	return ""
}

// Confidence returns the confidence of the wrapped candidate or match.
func (it Item) Confidence() float64 {
	switch {
	case it.Candidate != nil:
		return it.Candidate.Confidence
	case it.Song != nil:
		return it.Song.Confidence
	}
	return 0
}

func (it Item) clone() Item {
	if it.Candidate != nil {
		c := *it.Candidate
		it.Candidate = &c
	}
	if it.Song != nil {
		m := *it.Song
		it.Song = &m
	}
	return it
}

// Stats holds the session counters. Each counter only grows.
type Stats struct {
	Detected  uint64 `json:"detected"`
	Approved  uint64 `json:"approved"`
	Displayed uint64 `json:"displayed"`
	Dismissed uint64 `json:"dismissed"`
}
