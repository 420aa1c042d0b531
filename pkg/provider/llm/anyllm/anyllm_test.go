package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/versecue/pkg/provider/llm"
)

func TestNew_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, backend, model, wantInErr string
	}{
		{"unknown backend", "carrier-pigeon", "m", "carrier-pigeon"},
		{"empty backend", "", "m", "unknown backend"},
		{"missing model", "ollama", "", "model is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.backend, tt.model)
			if err == nil || !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantInErr)
			}
		})
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()
	got := Backends()
	if !slices.IsSorted(got) || !slices.Contains(got, "ollama") || len(got) != 9 {
		t.Errorf("Backends() = %v", got)
	}
}

func TestParams(t *testing.T) {
	t.Parallel()
	user := []llm.Message{{Role: llm.RoleUser, Content: "amazing grace how sweet the sound"}}

	tests := []struct {
		name       string
		req        llm.CompletionRequest
		wantSystem string
		wantTemp   bool
		wantMax    bool
	}{
		{name: "bare", req: llm.CompletionRequest{Messages: user}},
		{
			name:       "tuned",
			req:        llm.CompletionRequest{SystemPrompt: "Identify the song.", Messages: user, Temperature: 0.2, MaxTokens: 128},
			wantSystem: "Identify the song.",
			wantTemp:   true,
			wantMax:    true,
		},
		{
			name:       "json mode adds hint",
			req:        llm.CompletionRequest{SystemPrompt: "Identify the song.", Messages: user, JSONMode: true},
			wantSystem: "Identify the song.\n\n" + jsonHint,
		},
		{
			name:       "json mode without prompt",
			req:        llm.CompletionRequest{Messages: user, JSONMode: true},
			wantSystem: jsonHint,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{model: "llama3.2"}
			got := p.params(tt.req)

			if got.Model != "llama3.2" {
				t.Errorf("Model = %q", got.Model)
			}
			msgs := got.Messages
			if tt.wantSystem != "" {
				if len(msgs) == 0 || msgs[0].Role != anyllmlib.RoleSystem || msgs[0].ContentString() != tt.wantSystem {
					t.Fatalf("system message = %+v, want %q", msgs, tt.wantSystem)
				}
				msgs = msgs[1:]
			}
			if len(msgs) != 1 || msgs[0].ContentString() != user[0].Content {
				t.Errorf("user messages = %+v", msgs)
			}
			if (got.Temperature != nil) != tt.wantTemp || (got.MaxTokens != nil) != tt.wantMax {
				t.Errorf("Temperature = %v, MaxTokens = %v", got.Temperature, got.MaxTokens)
			}
			if tt.wantMax && *got.MaxTokens != 128 {
				t.Errorf("MaxTokens = %d", *got.MaxTokens)
			}
		})
	}
}
