// Package mock provides an in-memory mock implementation of [store.Store] for
// use in unit tests.
//
// The mock records method calls, exposes exported fields for configuring
// return values, and is safe for concurrent use.
//
// Example:
//
//	st := &mock.Store{
//	    GetTurnsResult: []types.Turn{{ID: "t1", Role: types.RoleHuman, Content: "hi"}},
//	}
//	turns, err := st.GetTurns(ctx, "s1", store.TurnQuery{})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// CreateTurnCall records the arguments of a single [Store.CreateTurn] invocation.
type CreateTurnCall struct {
	Params store.CreateTurnParams
}

// CreateSessionCall records the arguments of a single [Store.CreateSession] invocation.
type CreateSessionCall struct {
	Params store.CreateSessionParams
}

// Store is a mock implementation of [store.Store].
type Store struct {
	mu sync.Mutex

	// CreateSessionResult is returned by CreateSession when set; otherwise a
	// session is synthesized from the params.
	CreateSessionResult *types.Session

	// CreateSessionError is returned by CreateSession.
	CreateSessionError error

	// GetSessionResult is returned by GetSession.
	GetSessionResult *types.Session

	// GetSessionError is returned by GetSession. Defaults to store.ErrNotFound
	// when no result is configured.
	GetSessionError error

	// ListSessionsResult is returned by ListSessionsByUser.
	ListSessionsResult []types.Session

	// ListSessionsError is returned by ListSessionsByUser.
	ListSessionsError error

	// UpdateActivityError is returned by UpdateSessionActivity.
	UpdateActivityError error

	// DeleteSessionError is returned by DeleteSession.
	DeleteSessionError error

	// CreateTurnResult is returned by CreateTurn when set; otherwise a turn is
	// synthesized from the params with a fresh id.
	CreateTurnResult *types.Turn

	// CreateTurnError is returned by CreateTurn.
	CreateTurnError error

	// GetTurnsResult is returned by GetTurns.
	GetTurnsResult []types.Turn

	// GetTurnsError is returned by GetTurns.
	GetTurnsError error

	createSessionCalls []CreateSessionCall
	createTurnCalls    []CreateTurnCall
	activityCalls      []string
}

var _ store.Store = (*Store)(nil)

func (m *Store) CreateSession(_ context.Context, p store.CreateSessionParams) (*types.Session, error) {
	m.mu.Lock()
	m.createSessionCalls = append(m.createSessionCalls, CreateSessionCall{Params: p})
	m.mu.Unlock()
	if m.CreateSessionError != nil {
		return nil, m.CreateSessionError
	}
	if m.CreateSessionResult != nil {
		return m.CreateSessionResult, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &types.Session{
		ID:             types.NewID(),
		UserID:         p.UserID,
		Title:          p.Title,
		DialogueType:   p.DialogueType,
		Status:         types.SessionActive,
		Metadata:       p.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}, nil
}

func (m *Store) GetSession(context.Context, string) (*types.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	if m.GetSessionResult == nil {
		return nil, store.ErrNotFound
	}
	return m.GetSessionResult, nil
}

func (m *Store) ListSessionsByUser(context.Context, string, int, int) ([]types.Session, error) {
	if m.ListSessionsError != nil {
		return nil, m.ListSessionsError
	}
	if m.ListSessionsResult == nil {
		return []types.Session{}, nil
	}
	return m.ListSessionsResult, nil
}

func (m *Store) UpdateSessionActivity(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	m.activityCalls = append(m.activityCalls, id)
	m.mu.Unlock()
	return m.UpdateActivityError
}

func (m *Store) DeleteSession(context.Context, string) error {
	return m.DeleteSessionError
}

func (m *Store) CreateTurn(_ context.Context, p store.CreateTurnParams) (*types.Turn, error) {
	m.mu.Lock()
	m.createTurnCalls = append(m.createTurnCalls, CreateTurnCall{Params: p})
	m.mu.Unlock()
	if m.CreateTurnError != nil {
		return nil, m.CreateTurnError
	}
	if m.CreateTurnResult != nil {
		return m.CreateTurnResult, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &types.Turn{
		ID:        types.NewID(),
		SessionID: types.NormalizeID(p.SessionID),
		Role:      p.Role,
		Content:   p.Content,
		Metadata:  p.Metadata,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Store) GetTurns(context.Context, string, store.TurnQuery) ([]types.Turn, error) {
	if m.GetTurnsError != nil {
		return nil, m.GetTurnsError
	}
	if m.GetTurnsResult == nil {
		return []types.Turn{}, nil
	}
	return m.GetTurnsResult, nil
}

// CreateSessionCalls returns a copy of the recorded CreateSession invocations.
func (m *Store) CreateSessionCalls() []CreateSessionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CreateSessionCall, len(m.createSessionCalls))
	copy(out, m.createSessionCalls)
	return out
}

// CreateTurnCalls returns a copy of the recorded CreateTurn invocations.
func (m *Store) CreateTurnCalls() []CreateTurnCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CreateTurnCall, len(m.createTurnCalls))
	copy(out, m.createTurnCalls)
	return out
}

// ActivityCalls returns the session ids passed to UpdateSessionActivity.
func (m *Store) ActivityCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.activityCalls))
	copy(out, m.activityCalls)
	return out
}
