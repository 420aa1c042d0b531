// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider],
// so one config block can point detection at Anthropic, Gemini, a church
// laptop running Ollama, or any other backend the library knows.
//
//	p, err := anyllm.New("ollama", "llama3.2")
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/versecue/pkg/provider/llm"
)

// jsonHint is appended to the system prompt for JSON-mode requests, since
// the library has no response-format switch that every backend honours.
const jsonHint = "Respond with exactly one JSON object and nothing else."

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

func wrap[P anyllmlib.Provider](f func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return f(opts...) }
}

var constructors = map[string]constructor{
	"openai":    wrap(anyllmoai.New),
	"anthropic": wrap(anthropic.New),
	"gemini":    wrap(gemini.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
}

// Backends returns the accepted backend names, sorted.
func Backends() []string { return slices.Sorted(maps.Keys(constructors)) }

// Provider is an [llm.Provider] over one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Provider. Backends read their usual API key environment
// variable when no key option is given.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(strings.TrimSpace(backend))
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (have %s)", backend, strings.Join(Backends(), ", "))
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: %s: model is required", name)
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

func (p *Provider) Model() string { return p.model }

// Complete sends req and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anyllm: request has no messages")
	}
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	system := req.SystemPrompt
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\n" + jsonHint)
	}

	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	out := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if t := req.Temperature; t != 0 {
		out.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		out.MaxTokens = &n
	}
	return out
}
