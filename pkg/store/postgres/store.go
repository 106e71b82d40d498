package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/colloquyhq/colloquy/pkg/store"
)

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

// Embedder produces vector embeddings for turn content. It is satisfied by
// the embeddings providers; the store never imports them directly.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Store is the PostgreSQL-backed session and turn store. All operations are
// safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	log      *slog.Logger
	embedder Embedder
	dims     int
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for non-fatal indexing failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithEmbedder enables the semantic turn index. Embeddings are written
// best-effort after each CreateTurn; indexing failures never fail the write.
func WithEmbedder(e Embedder) Option {
	return func(s *Store) {
		s.embedder = e
		s.dims = e.Dimensions()
	}
}

// NewStore connects to the database at dsn, registers pgvector types on every
// connection, and runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if s.dims > 0 {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, s.dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s.pool = pool
	return s, nil
}

// Ping reports whether the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections. Call via defer once the store is no
// longer needed.
func (s *Store) Close() {
	s.pool.Close()
}
