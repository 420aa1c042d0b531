package parser

import (
	"regexp"
	"strings"

	"github.com/MrWong99/versecue/internal/scripture"
)

// PhraseConfidence is the confidence assigned to verbatim quotation matches.
const PhraseConfidence = 0.90

type quotation struct {
	phrase string
	ref    scripture.Reference
}

// Only long, distinctive quotations belong here. Short phrases such as "god
// is love" occur in ordinary prayer and would produce false positives.
var quotations = []quotation{
	{"for god so loved the world", scripture.Reference{Book: "John", Chapter: 3, VerseStart: 16}},
	{"gave his only begotten son", scripture.Reference{Book: "John", Chapter: 3, VerseStart: 16}},
	{"i am the way the truth and the life", scripture.Reference{Book: "John", Chapter: 14, VerseStart: 6}},
	{"no one comes to the father except through me", scripture.Reference{Book: "John", Chapter: 14, VerseStart: 6}},
	{"the truth will set you free", scripture.Reference{Book: "John", Chapter: 8, VerseStart: 32}},
	{"the truth shall make you free", scripture.Reference{Book: "John", Chapter: 8, VerseStart: 32}},
	{"i am the good shepherd", scripture.Reference{Book: "John", Chapter: 10, VerseStart: 11}},
	{"i am the bread of life", scripture.Reference{Book: "John", Chapter: 6, VerseStart: 35}},
	{"i am the light of the world", scripture.Reference{Book: "John", Chapter: 8, VerseStart: 12}},
	{"i am the resurrection and the life", scripture.Reference{Book: "John", Chapter: 11, VerseStart: 25}},
	{"in the beginning was the word", scripture.Reference{Book: "John", Chapter: 1, VerseStart: 1}},
	{"the lord is my shepherd", scripture.Reference{Book: "Psalms", Chapter: 23, VerseStart: 1}},
	{"the valley of the shadow of death", scripture.Reference{Book: "Psalms", Chapter: 23, VerseStart: 4}},
	{"thy rod and thy staff they comfort me", scripture.Reference{Book: "Psalms", Chapter: 23, VerseStart: 4}},
	{"be still and know that i am god", scripture.Reference{Book: "Psalms", Chapter: 46, VerseStart: 10}},
	{"create in me a clean heart", scripture.Reference{Book: "Psalms", Chapter: 51, VerseStart: 10}},
	{"this is the day the lord has made", scripture.Reference{Book: "Psalms", Chapter: 118, VerseStart: 24}},
	{"your word is a lamp to my feet", scripture.Reference{Book: "Psalms", Chapter: 119, VerseStart: 105}},
	{"thy word is a lamp unto my feet", scripture.Reference{Book: "Psalms", Chapter: 119, VerseStart: 105}},
	{"trust in the lord with all your heart", scripture.Reference{Book: "Proverbs", Chapter: 3, VerseStart: 5, VerseEnd: 6}},
	{"lean not on your own understanding", scripture.Reference{Book: "Proverbs", Chapter: 3, VerseStart: 5, VerseEnd: 6}},
	{"train up a child in the way he should go", scripture.Reference{Book: "Proverbs", Chapter: 22, VerseStart: 6}},
	{"as iron sharpens iron", scripture.Reference{Book: "Proverbs", Chapter: 27, VerseStart: 17}},
	{"for all have sinned and fall short", scripture.Reference{Book: "Romans", Chapter: 3, VerseStart: 23}},
	{"the wages of sin is death", scripture.Reference{Book: "Romans", Chapter: 6, VerseStart: 23}},
	{"all things work together for good", scripture.Reference{Book: "Romans", Chapter: 8, VerseStart: 28}},
	{"if god is for us who can be against us", scripture.Reference{Book: "Romans", Chapter: 8, VerseStart: 31}},
	{"be transformed by the renewing of your mind", scripture.Reference{Book: "Romans", Chapter: 12, VerseStart: 2}},
	{"i can do all things through christ", scripture.Reference{Book: "Philippians", Chapter: 4, VerseStart: 13}},
	{"the peace of god which surpasses all understanding", scripture.Reference{Book: "Philippians", Chapter: 4, VerseStart: 7}},
	{"for i know the plans i have for you", scripture.Reference{Book: "Jeremiah", Chapter: 29, VerseStart: 11}},
	{"mount up with wings like eagles", scripture.Reference{Book: "Isaiah", Chapter: 40, VerseStart: 31}},
	{"those who wait on the lord shall renew their strength", scripture.Reference{Book: "Isaiah", Chapter: 40, VerseStart: 31}},
	{"seek first the kingdom of god", scripture.Reference{Book: "Matthew", Chapter: 6, VerseStart: 33}},
	{"come to me all you who are weary", scripture.Reference{Book: "Matthew", Chapter: 11, VerseStart: 28}},
	{"go and make disciples of all nations", scripture.Reference{Book: "Matthew", Chapter: 28, VerseStart: 19, VerseEnd: 20}},
	{"the fruit of the spirit is love joy peace", scripture.Reference{Book: "Galatians", Chapter: 5, VerseStart: 22, VerseEnd: 23}},
	{"by grace you have been saved through faith", scripture.Reference{Book: "Ephesians", Chapter: 2, VerseStart: 8, VerseEnd: 9}},
	{"put on the full armor of god", scripture.Reference{Book: "Ephesians", Chapter: 6, VerseStart: 11}},
	{"faith is the substance of things hoped for", scripture.Reference{Book: "Hebrews", Chapter: 11, VerseStart: 1}},
	{"love is patient love is kind", scripture.Reference{Book: "1 Corinthians", Chapter: 13, VerseStart: 4, VerseEnd: 7}},
	{"the greatest of these is love", scripture.Reference{Book: "1 Corinthians", Chapter: 13, VerseStart: 13}},
	{"if anyone is in christ he is a new creation", scripture.Reference{Book: "2 Corinthians", Chapter: 5, VerseStart: 17}},
	{"my grace is sufficient for you", scripture.Reference{Book: "2 Corinthians", Chapter: 12, VerseStart: 9}},
	{"cast all your anxiety on him", scripture.Reference{Book: "1 Peter", Chapter: 5, VerseStart: 7}},
	{"faith without works is dead", scripture.Reference{Book: "James", Chapter: 2, VerseStart: 26}},
	{"if we confess our sins", scripture.Reference{Book: "1 John", Chapter: 1, VerseStart: 9}},
	{"in the beginning god created", scripture.Reference{Book: "Genesis", Chapter: 1, VerseStart: 1}},
	{"be strong and courageous", scripture.Reference{Book: "Joshua", Chapter: 1, VerseStart: 9}},
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// MatchPhrases reports well-known verbatim quotations found in text. Matches
// carry PhraseConfidence and the probabilistic origin, since a quotation
// implies a reference rather than stating it.
func MatchPhrases(text string) []scripture.Candidate {
	folded := " " + strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(text), " ")) + " "
	if len(folded) <= 2 {
		return nil
	}

	var (
		out  []scripture.Candidate
		seen = make(map[string]struct{})
	)
	for _, q := range quotations {
		if !strings.Contains(folded, " "+q.phrase+" ") {
			continue
		}
		ref, ok := scripture.NewReference(q.ref.Book, q.ref.Chapter, q.ref.VerseStart, q.ref.VerseEnd)
		if !ok {
			continue
		}
		c := scripture.NewCandidate(ref, PhraseConfidence, scripture.OriginProbabilistic)
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		c.MatchedText = q.phrase
		c.Rationale = "verbatim quotation of " + ref.String()
		out = append(out, c)
	}
	return out
}
