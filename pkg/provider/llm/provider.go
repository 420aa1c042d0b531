// Package llm defines the Provider interface for text-completion backends.
//
// VerseCue uses language models for short, single-shot structured tasks:
// spotting implicit scripture references in a sermon fragment, answering a
// free-text verse search, and naming a worship song from a lyric snippet.
// Every caller asks for a JSON object and treats the reply as untrusted input.
// The interface is one blocking Complete call and a model name for logging.
//
// Implementors must be safe for concurrent use and must honour context
// cancellation.
package llm

import "context"

// Role names accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in the request conversation.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is injected before Messages using the provider's native
	// system-instruction mechanism.
	SystemPrompt string

	Messages []Message

	// Temperature in [0.0, 2.0]. Zero leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the reply length. Zero means provider default.
	MaxTokens int

	// JSONMode asks the backend to constrain output to a single JSON object
	// where supported. Callers must still validate the reply.
	JSONMode bool
}

// CompletionResponse is the full reply to a CompletionRequest.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It returns an error if
	// the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the configured model identifier.
	Model() string
}
