package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// CreateSession implements [store.Store]. The record is written in a single
// INSERT with every field populated.
func (s *Store) CreateSession(ctx context.Context, p store.CreateSessionParams) (*types.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO sessions
		    (id, user_id, title, dialogue_type, status, metadata, created_at, updated_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7)`

	now := time.Now().UTC()
	session := &types.Session{
		ID:             types.NewID(),
		UserID:         p.UserID,
		Title:          p.Title,
		DialogueType:   p.DialogueType,
		Status:         types.SessionActive,
		Metadata:       p.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	meta, err := metaJSON(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("postgres store: encode session metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, q,
		session.ID, session.UserID, session.Title, string(session.DialogueType),
		string(session.Status), meta, now)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create session: %w", err)
	}
	return session, nil
}

// GetSession implements [store.Store].
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	const q = `
		SELECT id, user_id, title, dialogue_type, status, metadata,
		       created_at, updated_at, last_activity_at
		FROM   sessions
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, types.NormalizeID(id))
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	session, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	return &session, nil
}

// ListSessionsByUser implements [store.Store]. Sessions are returned most
// recently active first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string, limit, offset int) ([]types.Session, error) {
	q := `
		SELECT id, user_id, title, dialogue_type, status, metadata,
		       created_at, updated_at, last_activity_at
		FROM   sessions
		WHERE  user_id = $1
		ORDER  BY last_activity_at DESC, id DESC`

	args := []any{userID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		q += fmt.Sprintf("\nOFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	return sessions, nil
}

// UpdateSessionActivity implements [store.Store]. Unknown ids are a no-op.
func (s *Store) UpdateSessionActivity(ctx context.Context, id string, ts time.Time) error {
	const q = `
		UPDATE sessions
		SET    last_activity_at = $2, updated_at = $2
		WHERE  id = $1`

	if _, err := s.pool.Exec(ctx, q, types.NormalizeID(id), ts.UTC()); err != nil {
		return fmt.Errorf("postgres store: update session activity: %w", err)
	}
	return nil
}

// DeleteSession implements [store.Store]. Turns cascade via the foreign key.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, types.NormalizeID(id))
	if err != nil {
		return fmt.Errorf("postgres store: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.CollectableRow) (types.Session, error) {
	var (
		session      types.Session
		dialogueType string
		status       string
		meta         []byte
	)
	if err := row.Scan(
		&session.ID, &session.UserID, &session.Title, &dialogueType, &status,
		&meta, &session.CreatedAt, &session.UpdatedAt, &session.LastActivityAt,
	); err != nil {
		return types.Session{}, err
	}
	session.DialogueType = types.DialogueType(dialogueType)
	session.Status = types.SessionStatus(status)
	if err := decodeMeta(meta, &session.Metadata); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

func metaJSON(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeMeta(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 || string(raw) == "{}" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
