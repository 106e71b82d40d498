package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/colloquyhq/colloquy/internal/resilience"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// Failover composes a primary provider and ordered fallbacks behind per-entry
// circuit breakers. Completion calls walk the chain until one succeeds;
// CountTokens and Capabilities always use the primary, since those never hit
// the network.
type Failover struct {
	group   *resilience.FallbackGroup[Provider]
	primary Provider
}

var _ Provider = (*Failover)(nil)

// NewFailover builds a failover chain with primary as the first entry.
func NewFailover(primaryName string, primary Provider, log *slog.Logger) *Failover {
	return &Failover{
		group: resilience.NewFallbackGroup(primaryName, primary, resilience.BreakerConfig{
			Threshold: 3,
			Cooldown:  30 * time.Second,
			Logger:    log,
		}),
		primary: primary,
	}
}

// Add appends a fallback provider, tried after all earlier entries.
func (f *Failover) Add(name string, p Provider) {
	f.group.Add(name, p)
}

// Complete implements [Provider], walking the chain until an entry succeeds.
func (f *Failover) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return resilience.DoWithResult(ctx, f.group, func(ctx context.Context, p Provider) (*CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens implements [Provider] using the primary's tokenizer.
func (f *Failover) CountTokens(messages []types.Message) (int, error) {
	return f.primary.CountTokens(messages)
}

// Capabilities implements [Provider], reporting the primary's capabilities.
func (f *Failover) Capabilities() Capabilities {
	return f.primary.Capabilities()
}
