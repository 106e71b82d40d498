package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// CreateTurn implements [store.Store]. When an embedder is configured the
// turn content is indexed best-effort after the write; an indexing failure is
// logged and never fails the committed turn.
func (s *Store) CreateTurn(ctx context.Context, p store.CreateTurnParams) (*types.Turn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO turns (id, session_id, role, content, metadata, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE  EXISTS (SELECT 1 FROM sessions WHERE id = $2)`

	turn := &types.Turn{
		ID:        types.NewID(),
		SessionID: types.NormalizeID(p.SessionID),
		Role:      p.Role,
		Content:   p.Content,
		Metadata:  p.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	meta, err := metaJSON(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("postgres store: encode turn metadata: %w", err)
	}
	tag, err := s.pool.Exec(ctx, q,
		turn.ID, turn.SessionID, string(turn.Role), turn.Content, meta, turn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}

	if s.embedder != nil && turn.Content != "" {
		s.indexTurn(ctx, turn)
	}
	return turn, nil
}

// GetTurns implements [store.Store]. The created_at, id compound order makes
// the same-instant tie-break equal to insertion order, since ids are minted
// monotonically.
func (s *Store) GetTurns(ctx context.Context, sessionID string, query store.TurnQuery) ([]types.Turn, error) {
	sid := types.NormalizeID(sessionID)
	args := []any{sid}
	cond := "session_id = $1"
	if query.BeforeID != "" {
		args = append(args, query.BeforeID)
		cond += fmt.Sprintf(" AND id < $%d", len(args))
	}

	var q string
	if query.Limit > 0 {
		// Newest window first, re-ordered chronologically by the outer query.
		args = append(args, query.Limit)
		q = fmt.Sprintf(`
			SELECT id, session_id, role, content, metadata, created_at FROM (
			    SELECT id, session_id, role, content, metadata, created_at
			    FROM   turns
			    WHERE  %s
			    ORDER  BY created_at DESC, id DESC
			    LIMIT  $%d
			) window
			ORDER BY created_at ASC, id ASC`, cond, len(args))
	} else {
		q = fmt.Sprintf(`
			SELECT id, session_id, role, content, metadata, created_at
			FROM   turns
			WHERE  %s
			ORDER  BY created_at ASC, id ASC`, cond)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get turns: %w", err)
	}
	return collectTurns(rows)
}

func collectTurns(rows pgx.Rows) ([]types.Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Turn, error) {
		var (
			t    types.Turn
			role string
			meta []byte
		)
		if err := row.Scan(&t.ID, &t.SessionID, &role, &t.Content, &meta, &t.CreatedAt); err != nil {
			return types.Turn{}, err
		}
		t.Role = types.Role(role)
		if err := decodeMeta(meta, &t.Metadata); err != nil {
			return types.Turn{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan turns: %w", err)
	}
	if turns == nil {
		turns = []types.Turn{}
	}
	return turns, nil
}
