package worship

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/versecue/internal/library"
)

const (
	firstPhraseMax = 60
	firstPhraseMin = 10
	firstWordsN    = 6
	distinctiveLen = 4
	distinctiveMax = 5
	distinctiveMin = 2
)

// stopwords are dropped before distinctive-word search. Besides function
// words the list holds words that occur in most worship songs and so say
// little about which song is being sung.
var stopwords = map[string]struct{}{
	"about": {}, "again": {}, "always": {}, "been": {}, "come": {}, "could": {},
	"down": {}, "even": {}, "ever": {}, "every": {}, "from": {}, "give": {},
	"have": {}, "here": {}, "into": {}, "just": {}, "know": {}, "like": {},
	"love": {}, "make": {}, "more": {}, "never": {}, "only": {}, "over": {},
	"said": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "thee": {},
	"thine": {}, "this": {}, "those": {}, "thou": {}, "through": {}, "unto": {},
	"upon": {}, "very": {}, "want": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "while": {}, "will": {}, "with": {}, "would": {},
	"your": {}, "yours": {}, "lord": {}, "jesus": {}, "yeah": {},
	"gonna": {}, "cause": {}, "because": {}, "whoa": {},
}

// firstPhrase returns the text before the first sentence punctuation, capped
// at 60 runes, or "" when shorter than 10.
func firstPhrase(text string) string {
	if i := strings.IndexAny(text, ",.!?"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > firstPhraseMax {
		text = strings.TrimSpace(string([]rune(text)[:firstPhraseMax]))
	}
	if utf8.RuneCountInString(text) < firstPhraseMin {
		return ""
	}
	return text
}

// firstWords returns the first n words of the folded text, or "" when the
// text has fewer.
func firstWords(text string, n int) string {
	words := strings.Fields(library.Fold(text))
	if len(words) < n {
		return ""
	}
	return strings.Join(words[:n], " ")
}

// distinctiveWords returns up to five folded, non-stopword words of at least
// four letters in order of appearance, or nil when fewer than two qualify.
func distinctiveWords(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(library.Fold(text)) {
		if letters(w) < distinctiveLen {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == distinctiveMax {
			break
		}
	}
	if len(out) < distinctiveMin {
		return nil
	}
	return out
}

func letters(w string) int {
	n := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
