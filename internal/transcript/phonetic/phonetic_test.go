package phonetic_test

import (
	"testing"

	"github.com/MrWong99/versecue/internal/transcript/phonetic"
)

func TestCorrect(t *testing.T) {
	t.Parallel()

	c := phonetic.New()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"misheard before digits", "turn with me to Romance 8 28", "turn with me to Romans 8 28"},
		{"misheard before number word", "open to romance chapter eight", "open to Romans chapter eight"},
		{"keeps trailing punctuation", "Philipians, 4:13 says", "Philippians, 4:13 says"},
		{"no chapter after token", "the romance of the gospel", "the romance of the gospel"},
		{"already a book", "Mark 5 is about healing", "Mark 5 is about healing"},
		{"ordinary sentence", "we have 3 songs this morning", "we have 3 songs this morning"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Correct(tt.in); got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	c := phonetic.New()
	name, score, ok := c.Match("ROMANCE")
	if !ok || name != "Romans" {
		t.Fatalf("Match(ROMANCE) = %q, %v, %v", name, score, ok)
	}
	if score < 0.8 || score > 1 {
		t.Errorf("score = %f, want in [0.8, 1]", score)
	}

	if _, _, ok := c.Match("job"); ok {
		t.Error("tokens shorter than four letters must not match")
	}
	if _, _, ok := c.Match("hello"); ok {
		t.Error("unrelated word matched a book")
	}
}

func TestWithThreshold(t *testing.T) {
	t.Parallel()

	c := phonetic.New(phonetic.WithThreshold(0.999))
	if got := c.Correct("Romance 8 28"); got != "Romance 8 28" {
		t.Errorf("strict threshold still rewrote: %q", got)
	}
}
