// Package mock provides an in-memory mock implementation of [llm.Provider]
// for use in unit tests.
//
// The mock records every request, returns configurable canned responses, and
// is safe for concurrent use.
//
// Example:
//
//	p := &mock.Provider{CompleteResult: &llm.CompletionResponse{Content: "hello"}}
//	resp, err := p.Complete(ctx, llm.CompletionRequest{Messages: msgs})
package mock

import (
	"context"
	"sync"

	"github.com/colloquyhq/colloquy/pkg/provider/llm"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// Provider is a mock implementation of [llm.Provider].
type Provider struct {
	mu sync.Mutex

	// CompleteResult is returned by Complete when CompleteFunc is nil.
	CompleteResult *llm.CompletionResponse

	// CompleteError is returned by Complete when CompleteFunc is nil.
	CompleteError error

	// CompleteFunc, when set, handles Complete calls entirely. It sees the
	// zero-based call index.
	CompleteFunc func(ctx context.Context, call int, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CapabilitiesResult is returned by Capabilities.
	CapabilitiesResult llm.Capabilities

	requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	call := len(p.requests)
	p.requests = append(p.requests, req)
	fn := p.CompleteFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, call, req)
	}
	if p.CompleteError != nil {
		return nil, p.CompleteError
	}
	if p.CompleteResult != nil {
		return p.CompleteResult, nil
	}
	return &llm.CompletionResponse{Content: "mock reply"}, nil
}

func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
	}
	return total, nil
}

func (p *Provider) Capabilities() llm.Capabilities {
	return p.CapabilitiesResult
}

// Requests returns a copy of every recorded Complete request, in call order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// LastRequest returns the most recent Complete request, or a zero value when
// none were made.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return llm.CompletionRequest{}
	}
	return p.requests[len(p.requests)-1]
}

// CallCount returns how many Complete calls were recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
