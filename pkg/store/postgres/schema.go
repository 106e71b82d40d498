// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store] plus the optional pgvector semantic index over turn content.
//
// Sessions and turns share a single [pgxpool.Pool]. When an embedding provider
// is configured, turns gain a vector column and [Store.SearchSimilar] becomes
// available; [Migrate] installs the pgvector extension via CREATE EXTENSION
// IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	session, _ := st.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})
//	_, _ = st.CreateTurn(ctx, store.CreateTurnParams{SessionID: session.ID, …})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT         PRIMARY KEY,
    user_id          TEXT         NOT NULL,
    title            TEXT         NOT NULL DEFAULT '',
    dialogue_type    TEXT         NOT NULL,
    status           TEXT         NOT NULL DEFAULT 'active',
    metadata         JSONB        NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ  NOT NULL,
    updated_at       TIMESTAMPTZ  NOT NULL,
    last_activity_at TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id
    ON sessions (user_id);

CREATE INDEX IF NOT EXISTS idx_sessions_user_activity
    ON sessions (user_id, last_activity_at DESC);
`

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    role        TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session_order
    ON turns (session_id, created_at, id);
`

// ddlTurnEmbeddings is only applied when an embedding dimension is configured.
// The vector index is HNSW over cosine distance, matching the SearchSimilar
// ordering.
const ddlTurnEmbeddings = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS turn_embeddings (
    turn_id     TEXT        PRIMARY KEY REFERENCES turns (id) ON DELETE CASCADE,
    session_id  TEXT        NOT NULL,
    embedding   vector(%d)  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_embeddings_session
    ON turn_embeddings (session_id);

CREATE INDEX IF NOT EXISTS idx_turn_embeddings_hnsw
    ON turn_embeddings USING hnsw (embedding vector_cosine_ops);
`

// Migrate creates the sessions and turns tables and, when embeddingDimensions
// is positive, the pgvector-backed turn_embeddings table. All statements are
// idempotent; changing embeddingDimensions after the first run requires a
// manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{ddlSessions, ddlTurns}
	if embeddingDimensions > 0 {
		statements = append(statements, fmt.Sprintf(ddlTurnEmbeddings, embeddingDimensions))
	}
	for _, ddl := range statements {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}
	return nil
}
