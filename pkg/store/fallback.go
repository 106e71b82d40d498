package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/colloquyhq/colloquy/internal/resilience"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// FallbackStore decorates a Store so that transient storage failures never
// surface to the dialogue pipeline. Writes fabricate a deterministic record
// carrying metadata.fallback=true; reads degrade to empty results. Malformed
// input still fails fast, before the breaker sees the call.
//
// Fabricated records are not retroactively persisted. The orchestrator treats
// them exactly like stored records and flags the response as degraded.
type FallbackStore struct {
	inner   Store
	breaker *resilience.Breaker
	log     *slog.Logger
}

var _ Store = (*FallbackStore)(nil)

// FallbackOption configures a [FallbackStore].
type FallbackOption func(*FallbackStore)

// WithLogger sets the logger for fallback events.
func WithLogger(l *slog.Logger) FallbackOption {
	return func(f *FallbackStore) { f.log = l }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) FallbackOption {
	return func(f *FallbackStore) { f.breaker = b }
}

// WithFallback wraps inner with fabricate-on-failure semantics.
func WithFallback(inner Store, opts ...FallbackOption) *FallbackStore {
	f := &FallbackStore{
		inner: inner,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.breaker == nil {
		f.breaker = resilience.NewBreaker(resilience.BreakerConfig{
			Name:     "store",
			Logger:   f.log,
			Cooldown: 15 * time.Second,
		})
	}
	return f
}

// Unwrap returns the decorated store, for readiness checks and capability
// probes (SemanticSearcher and Pinger assertions go through Unwrap).
func (f *FallbackStore) Unwrap() Store { return f.inner }

// IsFallback reports whether a record was fabricated by this decorator.
func IsFallback(meta map[string]any) bool {
	v, ok := meta["fallback"].(bool)
	return ok && v
}

func (f *FallbackStore) CreateSession(ctx context.Context, p CreateSessionParams) (*types.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out *types.Session
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = f.inner.CreateSession(ctx, p)
		return callErr
	})
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrMalformed) || ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn("store unavailable, fabricating session", "user_id", p.UserID, "error", err)
	now := time.Now().UTC()
	return &types.Session{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Title:          p.Title,
		DialogueType:   p.DialogueType,
		Status:         types.SessionActive,
		Metadata:       withFallbackMark(p.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}, nil
}

func (f *FallbackStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var out *types.Session
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = f.inner.GetSession(ctx, id)
		return callErr
	})
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		return nil, err
	}
	// A session the pipeline cannot load is indistinguishable from a missing
	// one; the orchestrator responds by fabricating a fresh session.
	f.log.Warn("store unavailable on session read", "session_id", id, "error", err)
	return nil, ErrNotFound
}

func (f *FallbackStore) ListSessionsByUser(ctx context.Context, userID string, limit, offset int) ([]types.Session, error) {
	var out []types.Session
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = f.inner.ListSessionsByUser(ctx, userID, limit, offset)
		return callErr
	})
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn("store unavailable on session list", "user_id", userID, "error", err)
	return []types.Session{}, nil
}

func (f *FallbackStore) UpdateSessionActivity(ctx context.Context, id string, ts time.Time) error {
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		return f.inner.UpdateSessionActivity(ctx, id, ts)
	})
	if err != nil && ctx.Err() == nil {
		f.log.Warn("store unavailable on activity update", "session_id", id, "error", err)
		return nil
	}
	return err
}

func (f *FallbackStore) DeleteSession(ctx context.Context, id string) error {
	// Deletes are not absorbed: a caller must learn the record may survive.
	return f.breaker.Do(ctx, func(ctx context.Context) error {
		return f.inner.DeleteSession(ctx, id)
	})
}

func (f *FallbackStore) CreateTurn(ctx context.Context, p CreateTurnParams) (*types.Turn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out *types.Turn
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = f.inner.CreateTurn(ctx, p)
		return callErr
	})
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn("store unavailable, fabricating turn", "session_id", p.SessionID, "error", err)
	return &types.Turn{
		ID:        uuid.NewString(),
		SessionID: types.NormalizeID(p.SessionID),
		Role:      p.Role,
		Content:   p.Content,
		Metadata:  withFallbackMark(p.Metadata),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *FallbackStore) GetTurns(ctx context.Context, sessionID string, q TurnQuery) ([]types.Turn, error) {
	var out []types.Turn
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = f.inner.GetTurns(ctx, sessionID, q)
		return callErr
	})
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn("store unavailable on turn read", "session_id", sessionID, "error", err)
	return []types.Turn{}, nil
}

func withFallbackMark(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["fallback"] = true
	return out
}
