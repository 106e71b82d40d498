package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/colloquyhq/colloquy/pkg/types"
)

// MemStore is a process-local Store for tests and storeless development mode.
// All data is lost on restart.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	turns    map[string][]types.Turn // keyed by session id, insertion order
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*types.Session),
		turns:    make(map[string][]types.Turn),
	}
}

func (m *MemStore) CreateSession(_ context.Context, p CreateSessionParams) (*types.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	s := &types.Session{
		ID:             types.NewID(),
		UserID:         p.UserID,
		Title:          p.Title,
		DialogueType:   p.DialogueType,
		Status:         types.SessionActive,
		Metadata:       cloneMeta(p.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	cp := *s
	return &cp, nil
}

func (m *MemStore) GetSession(_ context.Context, id string) (*types.Session, error) {
	id = types.NormalizeID(id)
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Metadata = cloneMeta(s.Metadata)
	return &cp, nil
}

func (m *MemStore) ListSessionsByUser(_ context.Context, userID string, limit, offset int) ([]types.Session, error) {
	m.mu.RLock()
	out := make([]types.Session, 0)
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			cp.Metadata = cloneMeta(s.Metadata)
			out = append(out, cp)
		}
	}
	m.mu.RUnlock()
	// Most recently active first, id as a stable tie-break.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset > 0 {
		if offset >= len(out) {
			return []types.Session{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) UpdateSessionActivity(_ context.Context, id string, ts time.Time) error {
	id = types.NormalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivityAt = ts.UTC()
		s.UpdatedAt = ts.UTC()
	}
	return nil
}

func (m *MemStore) DeleteSession(_ context.Context, id string) error {
	id = types.NormalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.turns, id)
	return nil
}

func (m *MemStore) CreateTurn(_ context.Context, p CreateTurnParams) (*types.Turn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	sid := types.NormalizeID(p.SessionID)
	t := types.Turn{
		ID:        types.NewID(),
		SessionID: sid,
		Role:      p.Role,
		Content:   p.Content,
		Metadata:  cloneMeta(p.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	if _, ok := m.sessions[sid]; !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	m.turns[sid] = append(m.turns[sid], t)
	m.mu.Unlock()
	cp := t
	return &cp, nil
}

func (m *MemStore) GetTurns(_ context.Context, sessionID string, q TurnQuery) ([]types.Turn, error) {
	sid := types.NormalizeID(sessionID)
	m.mu.RLock()
	src := m.turns[sid]
	out := make([]types.Turn, len(src))
	copy(out, src)
	m.mu.RUnlock()
	// Insertion order already satisfies the ordering contract; the sort keeps
	// it stable against clock skew on the stored timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.BeforeID != "" {
		n := 0
		for _, t := range out {
			if t.ID < q.BeforeID {
				out[n] = t
				n++
			}
		}
		out = out[:n]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
