package worship

import (
	"slices"
	"testing"

	"github.com/MrWong99/versecue/internal/library"
)

func TestFirstPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"You call me out upon the waters, the great unknown", "You call me out upon the waters"},
		{"Amazing grace! How sweet the sound", "Amazing grace"},
		{"Yes Lord, yes Lord", ""},
		{"and I will sing and I will dance and I will shout and I will praise your holy name forever", "and I will sing and I will dance and I will shout and I will"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := firstPhrase(tt.in); got != tt.want {
			t.Errorf("firstPhrase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstWords(t *testing.T) {
	t.Parallel()

	if got := firstWords("Bless the Lord, O my soul, O my soul", 6); got != "bless the lord o my soul" {
		t.Errorf("firstWords = %q", got)
	}
	if got := firstWords("bless the lord", 6); got != "" {
		t.Errorf("short text should yield nothing, got %q", got)
	}
}

func TestDistinctiveWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"You call me out upon the waters, the great unknown where feet may fail", []string{"call", "waters", "great", "unknown", "feet"}},
		{"Lord Jesus we love you, we love you Lord", nil},
		{"holy holy holy worthy", []string{"holy", "worthy"}},
	}
	for _, tt := range tests {
		if got := distinctiveWords(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("distinctiveWords(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	m := func(title, artist, source string, conf float64) library.Match {
		return library.Match{Song: library.Song{Title: title, Artist: artist}, Source: source, Confidence: conf}
	}
	results := [][]library.Match{
		{m("Amazing Grace", "John Newton", library.SourceLocal, 1)},
		nil,
		{
			m("amazing grace!", "John  Newton", "genius", 0.9),
			m("Oceans", "Hillsong", "lrclib", 0.9),
			m("", "", "lrclib", 0.9),
		},
		{m("Goodness of God", "Bethel", "llm", 0.8), m("Way Maker", "Sinach", "llm", 0.95)},
		{m("Build My Life", "Housefires", library.SourceLocal, 1)},
	}

	got := merge(results, 4)
	want := []string{"Amazing Grace", "Build My Life", "Way Maker", "Oceans"}
	if len(got) != len(want) {
		t.Fatalf("merge returned %d matches, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Song.Title != w {
			t.Errorf("merge[%d] = %q, want %q", i, got[i].Song.Title, w)
		}
	}
	if got[0].Source != library.SourceLocal {
		t.Error("first-seen source should win on duplicates")
	}
}

func TestParseLLMReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		wantOK   bool
		wantConf float64
	}{
		{"numeric", `{"identified":true,"confidence":0.85,"title":"Goodness of God","artist":"Bethel Music"}`, true, 0.85},
		{"capped", `{"identified":true,"confidence":0.99,"title":"Goodness of God","artist":"Bethel Music"}`, true, LLMConfidenceCap},
		{"word high", `{"identified":true,"confidence":"high","title":"Goodness of God","artist":"Bethel Music"}`, true, 0.9},
		{"word low", `{"identified":true,"confidence":"low","title":"Goodness of God"}`, false, 0},
		{"below floor", `{"identified":true,"confidence":0.6,"title":"Goodness of God"}`, false, 0},
		{"fenced", "```json\n{\"identified\":true,\"confidence\":0.8,\"title\":\"Way Maker\",\"artist\":\"Sinach\"}\n```", true, 0.8},
		{"not identified", `{"identified":false,"confidence":0,"title":"","artist":""}`, false, 0},
		{"no title", `{"identified":true,"confidence":0.9,"title":"  "}`, false, 0},
		{"garbage", `I think it is Way Maker`, false, 0},
		{"NaN string", `{"identified":true,"confidence":"NaN","title":"Way Maker"}`, false, 0},
		{"infinite string", `{"identified":true,"confidence":"Inf","title":"Way Maker"}`, false, 0},
		{"numeric string", `{"identified":true,"confidence":" 0.8 ","title":"Way Maker"}`, true, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, ok := parseLLMReply(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && m.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", m.Confidence, tt.wantConf)
			}
			if ok && (m.Source != StrategyLLM || m.Local()) {
				t.Errorf("source = %q", m.Source)
			}
		})
	}
}
