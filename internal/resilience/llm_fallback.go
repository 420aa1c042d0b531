package resilience

import (
	"context"

	"github.com/MrWong99/versecue/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that tries several completion backends in
// order, each behind its own breaker. A typical chain is a hosted model with
// a local Ollama behind it.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a chain with primary first.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback appends p to the chain.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Breakers returns the per-backend breakers in chain order.
func (f *LLMFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Complete returns the first successful reply.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Model reports the primary's model; logs name the backend that answered.
func (f *LLMFallback) Model() string { return f.group.members[0].value.Model() }
