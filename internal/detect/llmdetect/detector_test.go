package llmdetect_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/versecue/internal/detect/llmdetect"
	"github.com/MrWong99/versecue/internal/resilience"
	"github.com/MrWong99/versecue/internal/scripture"
	"github.com/MrWong99/versecue/pkg/provider/llm"
	"github.com/MrWong99/versecue/pkg/provider/llm/mock"
)

const sermon = "as Paul wrote to the church in Rome, all things work together for good"

func reply(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func TestDetect_AcceptsValidatedReference(t *testing.T) {
	t.Parallel()

	p := reply(`{"references":[{"book":"Romans","chapter":8,"verseStart":28,"verseEnd":null,"confidence":0.92,"reasoning":"quotes Romans 8:28"}]}`)
	d := llmdetect.New(p)

	got := d.Detect(context.Background(), sermon)
	if len(got) != 1 {
		t.Fatalf("Detect: got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c.Display != "Romans 8:28" {
		t.Errorf("Display = %q, want Romans 8:28", c.Display)
	}
	if c.Origin != scripture.OriginProbabilistic {
		t.Errorf("Origin = %q, want probabilistic", c.Origin)
	}
	if c.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", c.Confidence)
	}
	if c.Rationale != "quotes Romans 8:28" {
		t.Errorf("Rationale = %q", c.Rationale)
	}
}

func TestDetect_RequestShape(t *testing.T) {
	t.Parallel()

	p := reply(`{"references":[]}`)
	d := llmdetect.New(p)
	d.Detect(context.Background(), sermon)

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 Complete call, got %d", len(calls))
	}
	req := calls[0].Req
	if !req.JSONMode {
		t.Error("request should ask for JSON mode")
	}
	if !strings.Contains(req.SystemPrompt, "missed reference is much better than a false positive") {
		t.Error("system prompt should be conservative")
	}
	if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, sermon) {
		t.Errorf("user message should carry the fragment, got %+v", req.Messages)
	}
	if _, ok := calls[0].Ctx.Deadline(); !ok {
		t.Error("model call should carry a deadline")
	}
}

func TestDetect_ShortFragmentSkipsCall(t *testing.T) {
	t.Parallel()

	p := reply(`{"references":[{"book":"John","chapter":3,"verseStart":16,"confidence":0.99}]}`)
	d := llmdetect.New(p)

	if got := d.Detect(context.Background(), "amen, amen"); got != nil {
		t.Errorf("Detect(short) = %v, want nil", got)
	}
	if len(p.Calls()) != 0 {
		t.Errorf("short fragment should not reach the model, got %d calls", len(p.Calls()))
	}
}

func TestDetect_Revalidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "below floor dropped",
			reply: `{"references":[{"book":"John","chapter":3,"verseStart":16,"confidence":0.79}]}`,
			want:  nil,
		},
		{
			name:  "at floor kept",
			reply: `{"references":[{"book":"John","chapter":3,"verseStart":16,"confidence":0.80}]}`,
			want:  []string{"John 3:16"},
		},
		{
			name:  "unknown book dropped",
			reply: `{"references":[{"book":"Hezekiah","chapter":3,"verseStart":16,"confidence":0.95}]}`,
			want:  nil,
		},
		{
			name:  "chapter out of bounds dropped",
			reply: `{"references":[{"book":"John","chapter":22,"verseStart":1,"confidence":0.95}]}`,
			want:  nil,
		},
		{
			name:  "verse out of bounds dropped",
			reply: `{"references":[{"book":"Psalm","chapter":23,"verseStart":7,"confidence":0.95}]}`,
			want:  nil,
		},
		{
			name:  "inverted range dropped",
			reply: `{"references":[{"book":"Romans","chapter":8,"verseStart":30,"verseEnd":28,"confidence":0.95}]}`,
			want:  nil,
		},
		{
			name:  "NaN confidence dropped",
			reply: `{"references":[{"book":"Romans","chapter":8,"verseStart":28,"confidence":"NaN"}]}`,
			want:  nil,
		},
		{
			name:  "infinite confidence dropped",
			reply: `{"references":[{"book":"Romans","chapter":8,"verseStart":28,"confidence":"+Inf"}]}`,
			want:  nil,
		},
		{
			name:  "numeric string confidence kept",
			reply: `{"references":[{"book":"Romans","chapter":8,"verseStart":28,"confidence":"0.9"}]}`,
			want:  []string{"Romans 8:28"},
		},
		{
			name:  "alias resolved",
			reply: `{"references":[{"book":"1 Cor","chapter":13,"verseStart":4,"verseEnd":7,"confidence":0.9}]}`,
			want:  []string{"1 Corinthians 13:4-7"},
		},
		{
			name:  "numeric strings accepted",
			reply: `{"references":[{"book":"John","chapter":"14","verseStart":"6","confidence":"0.9"}]}`,
			want:  []string{"John 14:6"},
		},
		{
			name:  "combined reference field",
			reply: `{"references":[{"reference":"Philippians 4:13","confidence":0.88}]}`,
			want:  []string{"Philippians 4:13"},
		},
		{
			name:  "missing confidence dropped",
			reply: `{"references":[{"book":"John","chapter":3,"verseStart":16}]}`,
			want:  nil,
		},
		{
			name:  "confidence above one dropped",
			reply: `{"references":[{"book":"John","chapter":3,"verseStart":16,"confidence":7}]}`,
			want:  nil,
		},
		{
			name:  "bad entry does not poison good one",
			reply: `{"references":["nonsense",{"book":"John","chapter":3,"verseStart":16,"confidence":0.9}]}`,
			want:  []string{"John 3:16"},
		},
		{
			name:  "duplicates collapsed",
			reply: `{"references":[{"book":"John","chapter":3,"verseStart":16,"confidence":0.9},{"book":"john","chapter":3,"verseStart":16,"verseEnd":16,"confidence":0.85}]}`,
			want:  []string{"John 3:16"},
		},
		{
			name:  "markdown fences stripped",
			reply: "```json\n{\"references\":[{\"book\":\"Genesis\",\"chapter\":1,\"verseStart\":1,\"confidence\":0.9}]}\n```",
			want:  []string{"Genesis 1:1"},
		},
		{
			name:  "malformed reply",
			reply: `I think it might be John 3:16`,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := llmdetect.New(reply(tt.reply))
			got := d.Detect(context.Background(), sermon)
			if len(got) != len(tt.want) {
				t.Fatalf("Detect: got %d candidates %v, want %v", len(got), got, tt.want)
			}
			for i := range got {
				if got[i].Display != tt.want[i] {
					t.Errorf("Detect[%d] = %q, want %q", i, got[i].Display, tt.want[i])
				}
			}
		})
	}
}

func TestDetect_FailuresDegradeToEmpty(t *testing.T) {
	t.Parallel()

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		d := llmdetect.New(&mock.Provider{CompleteErr: errors.New("connection refused")})
		if got := d.Detect(context.Background(), sermon); got != nil {
			t.Errorf("Detect = %v, want nil", got)
		}
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		d := llmdetect.New(&mock.Provider{})
		if got := d.Detect(context.Background(), sermon); got != nil {
			t.Errorf("Detect = %v, want nil", got)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{
			CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		d := llmdetect.New(p, llmdetect.WithTimeout(20*time.Millisecond))
		if got := d.Detect(context.Background(), sermon); got != nil {
			t.Errorf("Detect = %v, want nil", got)
		}
	})

	t.Run("circuit open", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteErr: errors.New("503")}
		cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Hour})
		d := llmdetect.New(p, llmdetect.WithBreaker(cb))

		d.Detect(context.Background(), sermon)
		if cb.State() != resilience.StateOpen {
			t.Fatalf("breaker state = %v, want open", cb.State())
		}
		if got := d.Detect(context.Background(), sermon); got != nil {
			t.Errorf("Detect = %v, want nil", got)
		}
		if n := len(p.Calls()); n != 1 {
			t.Errorf("open breaker should short-circuit, got %d calls", n)
		}
	})
}

func TestDetect_ConservativeMockYieldsNothing(t *testing.T) {
	t.Parallel()

	d := llmdetect.New(reply(`{"references":[]}`))
	if got := d.Detect(context.Background(), "God is so good today, amen everybody"); len(got) != 0 {
		t.Errorf("Detect(generic praise) = %v, want none", got)
	}
}

func TestSearch_UsesSearchFloor(t *testing.T) {
	t.Parallel()

	p := reply(`{"references":[
		{"book":"1 Corinthians","chapter":13,"verseStart":4,"confidence":0.77,"reasoning":"love is patient"},
		{"book":"1 John","chapter":4,"verseStart":8,"confidence":0.70}
	]}`)
	d := llmdetect.New(p)

	got := d.Search(context.Background(), "the verse about love being patient")
	if len(got) != 1 {
		t.Fatalf("Search: got %d candidates, want 1", len(got))
	}
	if got[0].Display != "1 Corinthians 13:4" {
		t.Errorf("Search[0] = %q, want 1 Corinthians 13:4", got[0].Display)
	}

	if got := d.Detect(context.Background(), "the passage where love is described as being patient"); len(got) != 0 {
		t.Errorf("Detect should apply the stricter floor, got %v", got)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	p := reply(`{"references":[]}`)
	d := llmdetect.New(p)
	if got := d.Search(context.Background(), "   "); got != nil {
		t.Errorf("Search(blank) = %v, want nil", got)
	}
	if len(p.Calls()) != 0 {
		t.Error("blank query should not reach the model")
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	p := reply(`{"references":[{"book":"John","chapter":3,"verseStart":16,"confidence":0.85}]}`)
	d := llmdetect.New(p, llmdetect.WithFloor(0.9), llmdetect.WithMinChars(5))

	if d.MinChars() != 5 {
		t.Errorf("MinChars() = %d, want 5", d.MinChars())
	}
	if got := d.Detect(context.Background(), "short text"); len(got) != 0 {
		t.Errorf("Detect with floor 0.9 = %v, want none", got)
	}
}
