// Package scripture is the reference grammar and validator shared by every
// detection path.
//
// It owns the canonical book table (66 books, KJV versification) and the
// rules that decide whether a (book, chapter, verse) triple exists. Book
// resolution is exact: canonical names, a fixed alias table, and unique
// prefixes of at least three letters. There is no edit-distance matching, so
// ambiguous input fails resolution instead of guessing.
//
// All functions are pure and safe for concurrent use; the table is built once
// at package init and never mutated afterwards.
package scripture

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
)

// minPrefixLen is the shortest input accepted as a book-name prefix.
const minPrefixLen = 3

var (
	byName map[string]int
	// byAlias maps every lower-cased alias to its book index.
	byAlias map[string]int
	// names holds every resolvable name (canonical + aliases), lower-cased
	// and sorted longest first.
	names []string

	ordinalPrefix = regexp.MustCompile(`^(first|1st|i|second|2nd|ii|third|3rd|iii)\s+`)
	spaces        = regexp.MustCompile(`\s+`)
)

func init() {
	byName = make(map[string]int, len(books))
	byAlias = make(map[string]int, len(books)*4)
	for i, b := range books {
		name := strings.ToLower(b.Name)
		byName[name] = i
		names = append(names, name)
		for _, a := range b.Aliases {
			byAlias[a] = i
			names = append(names, a)
		}
	}
	slices.SortStableFunc(names, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
}

// Books returns the canonical book table in canonical order. The returned
// slice is a copy; the Book values share their backing arrays and must not
// be modified.
func Books() []Book {
	return slices.Clone(books)
}

// Names returns every resolvable book name and alias, lower-cased and sorted
// longest first. It is intended for building scanning patterns, where the
// longest alternative must be tried first ("1 john" before "john").
func Names() []string {
	return slices.Clone(names)
}

// Resolve maps a raw book name to its canonical definition. Matching is
// case-insensitive and tries, in order: canonical name, alias, and a prefix
// of at least three letters that identifies exactly one book. Leading
// ordinals ("first", "2nd", "iii") are normalised to digits.
func Resolve(raw string) (Book, bool) {
	key := normalizeName(raw)
	if key == "" {
		return Book{}, false
	}
	if i, ok := byName[key]; ok {
		return books[i], true
	}
	if i, ok := byAlias[key]; ok {
		return books[i], true
	}
	if len(key) < minPrefixLen {
		return Book{}, false
	}

	match := -1
	for i, b := range books {
		if strings.HasPrefix(strings.ToLower(b.Name), key) {
			if match >= 0 {
				return Book{}, false
			}
			match = i
		}
	}
	if match < 0 {
		return Book{}, false
	}
	return books[match], true
}

// IsValid reports whether chapter (and verseStart, when positive) lies within
// the bounds of the named book. The book name is resolved first; unknown
// books are invalid.
func IsValid(book string, chapter, verseStart int) bool {
	b, ok := Resolve(book)
	if !ok {
		return false
	}
	return b.contains(chapter, verseStart)
}

// Validate reports whether every part of ref lies within the bounds of its
// book, including VerseEnd.
func Validate(ref Reference) bool {
	b, ok := Resolve(ref.Book)
	if !ok {
		return false
	}
	if !b.contains(ref.Chapter, ref.VerseStart) {
		return false
	}
	if ref.VerseEnd == 0 {
		return true
	}
	if ref.VerseStart == 0 || ref.VerseEnd < ref.VerseStart {
		return false
	}
	return ref.VerseEnd <= b.VerseCount(ref.Chapter)
}

func (b Book) contains(chapter, verse int) bool {
	if chapter < 1 || chapter > len(b.Chapters) {
		return false
	}
	if verse == 0 {
		return true
	}
	return verse >= 1 && verse <= b.Chapters[chapter-1]
}

func normalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".")
	s = spaces.ReplaceAllString(s, " ")
	if m := ordinalPrefix.FindStringSubmatch(s); m != nil {
		s = ordinalDigit(m[1]) + " " + s[len(m[0]):]
	}
	return s
}

func ordinalDigit(word string) string {
	switch word {
	case "first", "1st", "i":
		return "1"
	case "second", "2nd", "ii":
		return "2"
	default:
		return "3"
	}
}
