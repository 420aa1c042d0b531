// Package phonetic repairs Bible book names that speech recognition
// mishears, such as "Romance 8 28" or "Filipians 4 13".
//
// Each candidate token is compared against the single-word book names using
// Double Metaphone codes to find phonetic candidates and Jaro-Winkler
// similarity to rank them. A token is rewritten only when all of these hold:
//
//   - it is followed by a chapter number or the word "chapter";
//   - it does not already resolve to a book;
//   - exactly one book name shares a phonetic code with it and scores at or
//     above the threshold.
//
// The reference grammar itself stays exact; this runs on the text before
// the parser sees it.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/versecue/internal/scripture"
)

const (
	defaultThreshold = 0.80
	minTokenLen      = 4
)

// numberWords are the spoken forms that may start a chapter number.
var numberWords = map[string]struct{}{
	"chapter": {}, "one": {}, "two": {}, "three": {}, "four": {}, "five": {},
	"six": {}, "seven": {}, "eight": {}, "nine": {}, "ten": {}, "eleven": {},
	"twelve": {}, "thirteen": {}, "fourteen": {}, "fifteen": {}, "sixteen": {},
	"seventeen": {}, "eighteen": {}, "nineteen": {}, "twenty": {}, "thirty": {},
	"forty": {}, "fifty": {}, "sixty": {}, "seventy": {}, "eighty": {},
	"ninety": {}, "hundred": {},
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithThreshold sets the minimum Jaro-Winkler score for a rewrite.
// Default: 0.80.
func WithThreshold(t float64) Option {
	return func(c *Corrector) { c.threshold = t }
}

type target struct {
	name  string
	lower string
	codes [2]string
}

// Corrector rewrites misheard book names. It is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	threshold float64
	targets   []target
}

// New returns a Corrector over the canonical book table.
func New(opts ...Option) *Corrector {
	c := &Corrector{threshold: defaultThreshold}
	for _, o := range opts {
		o(c)
	}
	seen := make(map[string]struct{})
	for _, b := range scripture.Books() {
		// "1 Corinthians" contributes "Corinthians"; the ordinal is spoken
		// separately. Multi-word names such as "Song of Solomon" are skipped.
		fields := strings.Fields(b.Name)
		if len(fields) == 2 && unicode.IsDigit(rune(fields[0][0])) {
			fields = fields[1:]
		}
		if len(fields) != 1 {
			continue
		}
		name := fields[0]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		lower := strings.ToLower(name)
		p, s := matchr.DoubleMetaphone(lower)
		c.targets = append(c.targets, target{name: name, lower: lower, codes: [2]string{p, s}})
	}
	return c
}

// Match returns the book name word is a mishearing of. It reports false when
// no name or more than one name qualifies.
func (c *Corrector) Match(word string) (string, float64, bool) {
	w := strings.ToLower(word)
	if len([]rune(w)) < minTokenLen {
		return "", 0, false
	}
	p, s := matchr.DoubleMetaphone(w)

	var (
		best  target
		score float64
		hits  int
	)
	for _, t := range c.targets {
		if !overlap([2]string{p, s}, t.codes) {
			continue
		}
		jw := matchr.JaroWinkler(w, t.lower, false)
		if jw < c.threshold {
			continue
		}
		hits++
		if jw > score {
			best, score = t, jw
		}
	}
	if hits != 1 {
		return "", 0, false
	}
	return best.name, score, true
}

// Correct rewrites misheard book names in text and returns the result.
// Text without a qualifying token is returned unchanged.
func (c *Corrector) Correct(text string) string {
	tokens := strings.Fields(text)
	changed := false
	for i := 0; i+1 < len(tokens); i++ {
		core, tail := splitPunct(tokens[i])
		if core == "" || !chapterFollows(tokens[i+1]) {
			continue
		}
		if _, ok := scripture.Resolve(core); ok {
			continue
		}
		if name, _, ok := c.Match(core); ok {
			tokens[i] = name + tail
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(tokens, " ")
}

func chapterFollows(tok string) bool {
	tok, _ = splitPunct(strings.ToLower(tok))
	if tok == "" {
		return false
	}
	if unicode.IsDigit(rune(tok[0])) {
		return true
	}
	_, ok := numberWords[tok]
	return ok
}

// splitPunct separates trailing punctuation from a token.
func splitPunct(tok string) (core, tail string) {
	end := len(tok)
	for end > 0 && !unicode.IsLetter(rune(tok[end-1])) && !unicode.IsDigit(rune(tok[end-1])) {
		end--
	}
	return tok[:end], tok[end:]
}

func overlap(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
