package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

var _ store.SemanticSearcher = (*Store)(nil)

// indexTurn embeds and indexes a committed turn. Failures are logged, never
// returned; the turn itself is already durable.
func (s *Store) indexTurn(ctx context.Context, turn *types.Turn) {
	vectors, err := s.embedder.Embed(ctx, []string{turn.Content})
	if err != nil || len(vectors) == 0 {
		s.log.Warn("turn embedding failed", "turn_id", turn.ID, "error", err)
		return
	}
	const q = `
		INSERT INTO turn_embeddings (turn_id, session_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (turn_id) DO UPDATE SET embedding = EXCLUDED.embedding`

	if _, err := s.pool.Exec(ctx, q, turn.ID, turn.SessionID, pgvector.NewVector(vectors[0])); err != nil {
		s.log.Warn("turn index write failed", "turn_id", turn.ID, "error", err)
	}
}

// SearchSimilar implements [store.SemanticSearcher]. It returns up to limit
// turns of the session ranked by ascending cosine distance to text. Without a
// configured embedder it returns an empty result.
func (s *Store) SearchSimilar(ctx context.Context, sessionID, text string, limit int) ([]types.Turn, error) {
	if s.embedder == nil {
		return []types.Turn{}, nil
	}
	if limit <= 0 {
		limit = 5
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("postgres store: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return []types.Turn{}, nil
	}

	const q = `
		SELECT t.id, t.session_id, t.role, t.content, t.metadata, t.created_at
		FROM   turn_embeddings e
		JOIN   turns t ON t.id = e.turn_id
		WHERE  e.session_id = $1
		ORDER  BY e.embedding <=> $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q,
		types.NormalizeID(sessionID), pgvector.NewVector(vectors[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search similar: %w", err)
	}
	return collectTurns(rows)
}
