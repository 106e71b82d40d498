// Package llm defines the Provider interface for language model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, …) and exposes a uniform interface so the dialogue
// orchestrator and the proactive planner never couple to a specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import (
	"context"
	"errors"
	"net"

	"github.com/colloquyhq/colloquy/pkg/types"
)

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// textual content.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// A zero-value request is invalid; at minimum Messages must be non-empty and
// ordered oldest first.
type CompletionRequest struct {
	// Messages is the ordered conversation, system message first when present.
	Messages []types.Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means the
	// provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the full, non-streamed model reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Model is the backend model that produced the reply, when reported.
	Model string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Capabilities describes static properties of a provider's model.
type Capabilities struct {
	// MaxContextTokens is the model's context window size, zero when unknown.
	MaxContextTokens int

	// SupportsSystemRole is false for the rare backends that need the system
	// message folded into the first user message.
	SupportsSystemRole bool
}

// Provider is the abstraction over any model backend.
type Provider interface {
	// Complete sends req and waits for the full response. The supplied context
	// carries the per-call deadline; implementations must not outlive it.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would consume in the
	// model's context window. The result need not be exact but should not
	// undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities reports static model properties.
	Capabilities() Capabilities
}

// IsTransient reports whether err looks like a temporary condition worth
// retrying against a fallback provider: deadline expiry, cancellation by
// timeout, or a temporary network failure. Permanent errors (bad credentials,
// malformed request) return false and should surface to the caller's fallback
// reply path instead.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
