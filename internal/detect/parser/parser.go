// Package parser finds literal and loosely formatted scripture citations in
// transcript text.
//
// Parse is pure and synchronous: it performs no I/O and is cheap enough to run
// on every transcript fragment. Every match is checked against the canonical
// book table, and only valid references are returned, all with confidence 1.0.
//
// Spoken forms are supported through Normalize, which folds phrases such as
// "first Corinthians chapter thirteen verse four" into "1 corinthians 13:4"
// before scanning.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/versecue/internal/scripture"
)

// Confidence is the fixed confidence of every deterministic match.
const Confidence = 1.0

var citation = buildCitationPattern()

func buildCitationPattern() *regexp.Regexp {
	names := scripture.Names()
	alts := make([]string, len(names))
	for i, n := range names {
		alts[i] = strings.ReplaceAll(regexp.QuoteMeta(n), " ", `\s+`)
	}
	return regexp.MustCompile(`\b(` + strings.Join(alts, "|") + `)\.?\s*(#?)(\d{1,3})(?::#?(\d{1,3})(?:-#?(\d{1,3}))?)?\b`)
}

// Parse returns every valid citation found in text, in order of appearance.
// Duplicate references within one fragment are reported once. Invalid
// references (unknown book, chapter or verse out of range) are dropped.
func Parse(text string) []scripture.Candidate {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	var (
		out  []scripture.Candidate
		seen = make(map[string]struct{})
	)
	for _, m := range citation.FindAllStringSubmatch(normalized, -1) {
		book, spoken := m[1], m[2] == spokenMark
		chapter, _ := strconv.Atoi(m[3])
		verseStart, _ := strconv.Atoi(m[4])
		verseEnd, _ := strconv.Atoi(m[5])
		// An explicit verse 0 is out of range, not a chapter citation.
		if (m[4] != "" && verseStart == 0) || (m[5] != "" && verseEnd == 0) {
			continue
		}

		ref, ok := scripture.NewReference(book, chapter, verseStart, verseEnd)
		if !ok {
			continue
		}
		// A bare spoken number after a book name is too ambiguous in speech
		// ("mark one thing") except for psalms, which are cited that way.
		if spoken && verseStart == 0 && ref.Book != "Psalms" {
			continue
		}

		c := scripture.NewCandidate(ref, Confidence, scripture.OriginDeterministic)
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		c.MatchedText = m[0]
		out = append(out, c)
	}
	return out
}
