// Package openai implements [llm.Provider] on the official openai-go client.
// With [WithBaseURL] it also talks to anything serving the chat completions
// protocol, such as a llama.cpp server on the sound desk machine.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/versecue/pkg/provider/llm"
)

// Provider sends completions to one model.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

type settings struct {
	baseURL string
	req     []option.RequestOption
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
		s.req = append(s.req, option.WithBaseURL(url))
	}
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.req = append(s.req, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.req = append(s.req, option.WithHTTPClient(&http.Client{Timeout: d})) }
}

// WithMaxRetries overrides the client's retry count.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.req = append(s.req, option.WithMaxRetries(n)) }
}

// New returns a Provider for model. apiKey may be empty only when a base URL
// is given, since local servers usually run without auth.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	var s settings
	for _, o := range opts {
		o(&s)
	}
	if apiKey == "" {
		if s.baseURL == "" {
			return nil, errors.New("openai: api key is required without a base url")
		}
		apiKey = "none"
	}
	req := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.req...)
	return &Provider{client: oai.NewClient(req...), model: model}, nil
}

func (p *Provider) Model() string { return p.model }

// Complete returns the first choice of a chat completion.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s returned no choices", p.model)
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage:   llm.Usage{PromptTokens: int(u.PromptTokens), CompletionTokens: int(u.CompletionTokens), TotalTokens: int(u.TotalTokens)},
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs, err := messages(req)
	if err != nil {
		return oai.ChatCompletionNewParams{}, err
	}
	out := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		out.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		out.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONMode {
		out.ResponseFormat.OfJSONObject = &shared.ResponseFormatJSONObjectParam{}
	}
	return out, nil
}

func messages(req llm.CompletionRequest) ([]oai.ChatCompletionMessageParamUnion, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("request has no messages")
	}
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		case llm.RoleUser:
			out = append(out, oai.UserMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, oai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return out, nil
}
