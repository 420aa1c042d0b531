package parser_test

import (
	"testing"

	"github.com/MrWong99/versecue/internal/detect/parser"
	"github.com/MrWong99/versecue/internal/scripture"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "literal", text: "Romans 8:28", want: []string{"Romans 8:28"}},
		{name: "embedded", text: "Let's turn to John 3:16 today", want: []string{"John 3:16"}},
		{name: "range", text: "Romans 8:28-30", want: []string{"Romans 8:28-30"}},
		{name: "range through", text: "read Romans 8:28 through 30 with me", want: []string{"Romans 8:28-30"}},
		{name: "spoken chapter and verse", text: "turn to John chapter 3 verse 16", want: []string{"John 3:16"}},
		{name: "spoken numbers", text: "In Genesis chapter one verse one", want: []string{"Genesis 1:1"}},
		{name: "ordinal prefix chapter only", text: "First Corinthians chapter 13", want: []string{"1 Corinthians 13"}},
		{name: "ordinal with range", text: "Second Timothy 3:16-17", want: []string{"2 Timothy 3:16-17"}},
		{name: "two references in order", text: "Psalm 23 and John 14:6", want: []string{"Psalms 23", "John 14:6"}},
		{name: "alias", text: "1 Cor 13:4", want: []string{"1 Corinthians 13:4"}},
		{name: "hundreds", text: "Psalm one hundred nineteen verse one hundred and five", want: []string{"Psalms 119:105"}},
		{name: "compound number", text: "Psalm twenty three", want: []string{"Psalms 23"}},
		{name: "verses and", text: "Matthew chapter 5 verses 3 and 4", want: []string{"Matthew 5:3-4"}},
		{name: "duplicate collapsed", text: "John 3:16, yes John 3:16", want: []string{"John 3:16"}},
		{name: "invalid chapter dropped", text: "John 22:1", want: nil},
		{name: "invalid verse dropped", text: "Jude 1:26", want: nil},
		{name: "verse zero dropped", text: "John 3:0", want: nil},
		{name: "verse zero range dropped", text: "John 3:0-5", want: nil},
		{name: "range end zero dropped", text: "John 3:16-0", want: nil},
		{name: "spoken bare number is not a chapter", text: "Mark one thing in your heart", want: nil},
		{name: "no reference", text: "God is so good today", want: nil},
		{name: "empty", text: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parser.Parse(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Parse(%q) returned %d candidates %v, want %v", tt.text, len(got), displays(got), tt.want)
			}
			for i, c := range got {
				if c.Display != tt.want[i] {
					t.Errorf("Parse(%q)[%d] = %q, want %q", tt.text, i, c.Display, tt.want[i])
				}
				if c.Confidence != 1.0 {
					t.Errorf("Parse(%q)[%d].Confidence = %v, want 1.0", tt.text, i, c.Confidence)
				}
				if c.Origin != scripture.OriginDeterministic {
					t.Errorf("Parse(%q)[%d].Origin = %q, want deterministic", tt.text, i, c.Origin)
				}
			}
		})
	}
}

func TestParse_ResolvedFields(t *testing.T) {
	t.Parallel()

	got := parser.Parse("Romans 8:28")
	if len(got) != 1 {
		t.Fatalf("Parse returned %d candidates, want 1", len(got))
	}
	ref := got[0].Reference
	if ref.Book != "Romans" || ref.Chapter != 8 || ref.VerseStart != 28 || ref.VerseEnd != 0 {
		t.Errorf("Reference = %+v, want Romans 8:28", ref)
	}
	if got[0].Key != "romans|8|28|28" {
		t.Errorf("Key = %q, want %q", got[0].Key, "romans|8|28|28")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"John chapter 3 verse 16", "john 3:16"},
		{"chapter three verses sixteen through eighteen", "3:16-18"},
		{"twenty-three", "#23"},
		{"three sixteen", "#3 #16"},
		{"a hundred and fifty", "#150"},
		{"Second Kings 5", "2 kings 5"},
		{"open your bibles to Romans 8", "romans 8"},
		{"the Ephesian church", "the ephesians church"},
	}
	for _, tt := range tests {
		if got := parser.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchPhrases(t *testing.T) {
	t.Parallel()

	got := parser.MatchPhrases("And remember, for God so loved the world!")
	if len(got) != 1 {
		t.Fatalf("MatchPhrases returned %d candidates, want 1", len(got))
	}
	if got[0].Display != "John 3:16" {
		t.Errorf("Display = %q, want John 3:16", got[0].Display)
	}
	if got[0].Confidence != parser.PhraseConfidence {
		t.Errorf("Confidence = %v, want %v", got[0].Confidence, parser.PhraseConfidence)
	}
	if got[0].Origin != scripture.OriginProbabilistic {
		t.Errorf("Origin = %q, want probabilistic", got[0].Origin)
	}

	if got := parser.MatchPhrases("God is so good today"); len(got) != 0 {
		t.Errorf("MatchPhrases(generic praise) = %v, want none", displays(got))
	}
}

func displays(cs []scripture.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Display
	}
	return out
}
