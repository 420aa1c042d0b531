package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// spokenMark prefixes numbers that were spelled out in the source text. The
// scanner uses it to tell "John 3" (written) from "mark one thing" (speech).
const spokenMark = "#"

var (
	sttFixes = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`\brevelations\b`), "revelation"},
		{regexp.MustCompile(`\bcanticles\b`), "song of solomon"},
		{regexp.MustCompile(`\bphillip ians\b`), "philippians"},
		{regexp.MustCompile(`\bcorinthian\b`), "corinthians"},
		{regexp.MustCompile(`\bephesian\b`), "ephesians"},
		{regexp.MustCompile(`\bphilippian\b`), "philippians"},
		{regexp.MustCompile(`\bcolossian\b`), "colossians"},
		{regexp.MustCompile(`\bthessalonian\b`), "thessalonians"},
		{regexp.MustCompile(`\bgalatian\b`), "galatians"},
		{regexp.MustCompile(`\bpsalm's\b`), "psalms"},
	}

	numberedBooks = `(samuel|sam|kings|kgs|chronicles|chr|corinthians|cor|thessalonians|thess|timothy|tim|peter|pet|john|jn)\b`
	ordinalOne    = regexp.MustCompile(`\b(?:first|1st|i)\s+` + numberedBooks)
	ordinalTwo    = regexp.MustCompile(`\b(?:second|2nd|ii)\s+` + numberedBooks)
	ordinalThree  = regexp.MustCompile(`\b(?:third|3rd|iii)\s+` + numberedBooks)

	wordRE = regexp.MustCompile(`[a-z]+`)

	chapterVerse = regexp.MustCompile(`chapter\s*#?(\d+)\s*,?\s*verses?\s*#?(\d+)(?:\s*(?:-|through|thru|to|and|&)\s*#?(\d+))?`)
	chapterOnly  = regexp.MustCompile(`chapter\s*#?(\d+)`)
	verseOnly    = regexp.MustCompile(`\bverses?\s*#?(\d+)(?:\s*(?:-|through|thru|to|and|&)\s*#?(\d+))?`)
	verseRange   = regexp.MustCompile(`:(\d+)\s*(?:-|through|thru|to)\s*#?(\d+)`)

	fillers = strings.NewReplacer(
		"if you would turn to", " ",
		"open your bibles to", " ",
		"scripture says in", " ",
		"the bible says in", " ",
		"turn with me to", " ",
		"from the book of", " ",
		"let's read from", " ",
		"please turn to", " ",
		"in the book of", " ",
		"let's turn to", " ",
		"as we read in", " ",
		"as it says in", " ",
		"let's look at", " ",
		"the book of", " ",
		"recorded in", " ",
		"it says in", " ",
		"written in", " ",
		"we find in", " ",
		"we see in", " ",
		"read from", " ",
		"found in", " ",
		"turn to", " ",
	)

	spaceRE = regexp.MustCompile(`\s+`)
	colonRE = regexp.MustCompile(`\s*:\s*`)
	dashRE  = regexp.MustCompile(`\s*-\s*`)
)

var (
	units = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9,
	}
	teens = map[string]int{
		"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
		"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	}
	tens = map[string]int{
		"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
		"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	}
)

// Normalize rewrites spoken citation forms into the compact "book c:v-e"
// shape the scanner understands. It lower-cases the text, fixes common STT
// slips, converts ordinal book prefixes and number words, folds "chapter N
// verse M" into "N:M", folds verse ranges, and strips lead-in phrases.
//
// Spelled-out numbers keep a leading "#" so the scanner can apply stricter
// rules to them.
func Normalize(text string) string {
	s := strings.ToLower(text)
	for _, f := range sttFixes {
		s = f.re.ReplaceAllString(s, f.repl)
	}
	s = ordinalOne.ReplaceAllString(s, "1 $1")
	s = ordinalTwo.ReplaceAllString(s, "2 $1")
	s = ordinalThree.ReplaceAllString(s, "3 $1")
	s = convertNumberWords(s)

	s = chapterVerse.ReplaceAllStringFunc(s, func(m string) string {
		g := chapterVerse.FindStringSubmatch(m)
		if g[3] != "" {
			return g[1] + ":" + g[2] + "-" + g[3]
		}
		return g[1] + ":" + g[2]
	})
	s = chapterOnly.ReplaceAllString(s, "$1")
	s = verseOnly.ReplaceAllStringFunc(s, func(m string) string {
		g := verseOnly.FindStringSubmatch(m)
		if g[2] != "" {
			return ":" + g[1] + "-" + g[2]
		}
		return ":" + g[1]
	})
	s = verseRange.ReplaceAllString(s, ":$1-$2")

	s = fillers.Replace(s)
	s = spaceRE.ReplaceAllString(s, " ")
	s = colonRE.ReplaceAllString(s, ":")
	s = dashRE.ReplaceAllString(s, "-")
	return strings.TrimSpace(s)
}

// convertNumberWords replaces runs of English number words with digits
// ("twenty three" -> "#23", "one hundred and nineteen" -> "#119"). Adjacent
// numbers that cannot combine ("three sixteen") become separate values.
func convertNumberWords(s string) string {
	locs := wordRE.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}

	var (
		out     strings.Builder
		last    int
		current int
		inRun   bool
		runEnd  int
		pending []int
	)
	flush := func() {
		if inRun {
			pending = append(pending, current)
		}
		current = 0
		inRun = false
	}
	emit := func() {
		flush()
		for i, n := range pending {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(spokenMark)
			out.WriteString(strconv.Itoa(n))
		}
		pending = pending[:0]
		last = runEnd
	}

	for i, loc := range locs {
		w := s[loc[0]:loc[1]]
		gap := ""
		if i > 0 {
			gap = s[locs[i-1][1]:loc[0]]
		}
		joinable := strings.Trim(gap, " -") == ""

		if (inRun || len(pending) > 0) && !joinable {
			emit()
		}

		switch {
		case units[w] > 0:
			v := units[w]
			if inRun && (current%10 != 0 || current%100 >= 10 && current%100 < 20) {
				flush()
			}
			current += v
		case teens[w] > 0:
			if inRun && current%100 != 0 {
				flush()
			}
			current += teens[w]
		case tens[w] > 0:
			if inRun && current%100 != 0 {
				flush()
			}
			current += tens[w]
		case w == "hundred":
			switch {
			case !inRun:
				current = 100
			case current < 10:
				current *= 100
			default:
				flush()
				current = 100
			}
		case w == "and" && inRun && current%100 == 0 && i+1 < len(locs) && isNumberWord(s[locs[i+1][0]:locs[i+1][1]]):
			runEnd = loc[1]
			continue
		case w == "a" && i+1 < len(locs) && s[locs[i+1][0]:locs[i+1][1]] == "hundred" && !inRun:
			if len(pending) > 0 {
				emit()
			}
			out.WriteString(s[last:loc[0]])
			last = loc[0]
			inRun = true
			current = 1
			runEnd = loc[1]
			continue
		default:
			if inRun || len(pending) > 0 {
				emit()
			}
			continue
		}

		if !inRun && len(pending) == 0 {
			out.WriteString(s[last:loc[0]])
			last = loc[0]
		}
		inRun = true
		runEnd = loc[1]
	}
	if inRun || len(pending) > 0 {
		emit()
	}
	out.WriteString(s[last:])
	return out.String()
}

func isNumberWord(w string) bool {
	return units[w] > 0 || teens[w] > 0 || tens[w] > 0 || w == "hundred"
}
