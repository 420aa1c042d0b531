// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled replies to detectors and
// identifiers without a live backend, and to inspect the requests they sent.
// Configure fields before the first call; mutating them during a concurrent
// call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"references":[]}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/versecue/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause Complete to return (nil, nil).
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, if set, takes precedence over CompleteResponse and
	// CompleteErr. It lets a test vary the reply per request.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is returned by Complete.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ModelName is returned by Model. Defaults to "mock".
	ModelName string

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the configured reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Model returns ModelName or "mock".
func (p *Provider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelName == "" {
		return "mock"
	}
	return p.ModelName
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
