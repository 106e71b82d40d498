package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] either failed
// or was skipped because its breaker is open.
var ErrAllFailed = errors.New("resilience: all providers failed")

type groupEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup holds a primary and ordered fallbacks of the same provider
// type, each behind its own [Breaker]. Entries are tried in registration
// order; open breakers are skipped without a call.
type FallbackGroup[T any] struct {
	entries []groupEntry[T]
	breaker BreakerConfig
	log     *slog.Logger
}

// NewFallbackGroup creates a group with primary as the first entry. The
// breaker config is cloned per entry with the entry's name.
func NewFallbackGroup[T any](name string, primary T, breaker BreakerConfig) *FallbackGroup[T] {
	log := breaker.Logger
	if log == nil {
		log = slog.Default()
	}
	g := &FallbackGroup[T]{breaker: breaker, log: log}
	g.Add(name, primary)
	return g
}

// Add appends a fallback entry, tried after all previously added entries.
func (g *FallbackGroup[T]) Add(name string, value T) {
	cfg := g.breaker
	cfg.Name = name
	g.entries = append(g.entries, groupEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Names returns the entry names in try order.
func (g *FallbackGroup[T]) Names() []string {
	out := make([]string, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.name
	}
	return out
}

// Do tries fn against each entry until one succeeds.
func (g *FallbackGroup[T]) Do(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := DoWithResult(ctx, g, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// DoWithResult tries fn against each entry of g until one succeeds and
// returns its result. A package-level function because methods cannot add
// type parameters.
func DoWithResult[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var callErr error
			result, callErr = fn(ctx, e.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %w", ErrAllFailed, ctx.Err())
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			g.log.Debug("provider skipped, circuit open", "provider", e.name)
		} else {
			g.log.Warn("provider failed, trying next", "provider", e.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
