package scripture

import (
	"fmt"
	"strconv"
	"strings"
)

// Reference identifies a chapter, verse or verse range in a canonical book.
// VerseStart and VerseEnd are zero when absent.
type Reference struct {
	Book       string `json:"book"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start,omitempty"`
	VerseEnd   int    `json:"verse_end,omitempty"`
}

// NewReference resolves book and returns a Reference carrying the canonical
// book name. It returns false when the book is unknown or the bounds are
// invalid. A verseEnd equal to verseStart is collapsed to a single verse.
func NewReference(book string, chapter, verseStart, verseEnd int) (Reference, bool) {
	b, ok := Resolve(book)
	if !ok {
		return Reference{}, false
	}
	if verseEnd == verseStart {
		verseEnd = 0
	}
	ref := Reference{Book: b.Name, Chapter: chapter, VerseStart: verseStart, VerseEnd: verseEnd}
	if !Validate(ref) {
		return Reference{}, false
	}
	return ref, true
}

// String renders the display form: "John 3", "John 3:16" or "Romans 8:28-30".
// The range suffix is omitted when the end equals the start.
func (r Reference) String() string {
	var sb strings.Builder
	sb.WriteString(r.Book)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(r.Chapter))
	if r.VerseStart > 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(r.VerseStart))
		if r.VerseEnd > 0 && r.VerseEnd != r.VerseStart {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(r.VerseEnd))
		}
	}
	return sb.String()
}

// Key returns the normalised identity used for deduplication. Two references
// that render the same passage produce the same key regardless of how the
// book was spelled or whether a single-verse range carried an explicit end.
func (r Reference) Key() string {
	book := strings.ToLower(r.Book)
	if b, ok := Resolve(r.Book); ok {
		book = strings.ToLower(b.Name)
	}
	end := r.VerseEnd
	if end == 0 || end == r.VerseStart {
		end = r.VerseStart
	}
	return fmt.Sprintf("%s|%d|%d|%d", book, r.Chapter, r.VerseStart, end)
}

// Origin records which detection path produced a candidate.
type Origin string

const (
	// OriginDeterministic marks candidates found by the reference parser.
	OriginDeterministic Origin = "deterministic"
	// OriginProbabilistic marks candidates proposed by a language model or a
	// quotation lookup.
	OriginProbabilistic Origin = "probabilistic"
)

// Candidate is a validated reference proposed for review.
type Candidate struct {
	Reference   Reference `json:"reference"`
	Display     string    `json:"display"`
	Confidence  float64   `json:"confidence"`
	Origin      Origin    `json:"origin"`
	Rationale   string    `json:"rationale,omitempty"`
	MatchedText string    `json:"matched_text,omitempty"`
	Key         string    `json:"key"`
}

// NewCandidate builds a Candidate with its display string and identity key
// derived from ref.
func NewCandidate(ref Reference, confidence float64, origin Origin) Candidate {
	return Candidate{
		Reference:  ref,
		Display:    ref.String(),
		Confidence: confidence,
		Origin:     origin,
		Key:        ref.Key(),
	}
}
