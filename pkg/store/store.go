// Package store defines the persistence contract for Colloquy sessions and
// turns, plus the query options shared by all implementations.
//
// The store exclusively owns the sessions and turns tables; every other
// component reads and writes only through the [Store] interface. Two
// implementations ship with the server: [github.com/colloquyhq/colloquy/pkg/store/postgres]
// for durable storage and [MemStore] for tests and storeless development mode.
// [WithFallback] decorates either with the fabricate-on-failure semantics the
// orchestrator relies on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colloquyhq/colloquy/pkg/types"
)

// ErrNotFound is returned by read paths when the requested session does not
// exist. Reads never return nil slices for empty results — absence of a
// session is the only not-found condition.
var ErrNotFound = errors.New("store: not found")

// ErrMalformed wraps input validation failures: missing session id on a turn,
// unknown role, unknown dialogue type. Malformed input is never absorbed by
// fallback — it fails the call outright.
var ErrMalformed = errors.New("store: malformed input")

// CreateSessionParams carries the fields for a new session. A session record
// is created in a single write with all fields populated; implementations must
// not create an empty record and update it afterwards.
type CreateSessionParams struct {
	UserID       string
	Title        string
	DialogueType types.DialogueType
	Metadata     map[string]any
}

// Validate checks the parameters, filling defaults where the contract allows.
func (p *CreateSessionParams) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrMalformed)
	}
	if p.DialogueType == "" {
		p.DialogueType = types.DialogueHumanAIPrivate
	}
	if !p.DialogueType.IsValid() {
		return fmt.Errorf("%w: unknown dialogue type %q", ErrMalformed, p.DialogueType)
	}
	return nil
}

// CreateTurnParams carries the fields for a new turn.
type CreateTurnParams struct {
	SessionID string
	Role      types.Role
	Content   string
	Metadata  map[string]any
}

// Validate checks the parameters.
func (p *CreateTurnParams) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrMalformed)
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrMalformed, p.Role)
	}
	return nil
}

// TurnQuery bounds a GetTurns call. The zero value means "all turns".
type TurnQuery struct {
	// Limit caps the number of returned turns. Zero means no cap. When a cap
	// applies, the most recent turns are kept and returned oldest-first.
	Limit int

	// BeforeID restricts the result to turns whose id sorts strictly before
	// the given turn id. Empty means no bound.
	BeforeID string
}

// Store is the persistence contract the orchestrator and scheduler depend on.
//
// GetTurns must return turns sorted strictly by created_at ascending, with
// same-instant ties broken by insertion order. All implementations must be
// safe for concurrent use.
type Store interface {
	CreateSession(ctx context.Context, p CreateSessionParams) (*types.Session, error)
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessionsByUser(ctx context.Context, userID string, limit, offset int) ([]types.Session, error)

	// UpdateSessionActivity advances last_activity_at. Unknown ids are a no-op.
	UpdateSessionActivity(ctx context.Context, id string, ts time.Time) error

	// DeleteSession removes the session and cascades to its turns.
	DeleteSession(ctx context.Context, id string) error

	CreateTurn(ctx context.Context, p CreateTurnParams) (*types.Turn, error)
	GetTurns(ctx context.Context, sessionID string, q TurnQuery) ([]types.Turn, error)
}

// SemanticSearcher is implemented by stores that maintain a vector index over
// turn content. The assembler uses it opportunistically; callers must treat
// its absence (a failed type assertion) as "no semantic recall".
type SemanticSearcher interface {
	// SearchSimilar returns up to limit prior turns of the session ranked by
	// semantic similarity to text, most similar first.
	SearchSimilar(ctx context.Context, sessionID, text string, limit int) ([]types.Turn, error)
}

// Pinger is implemented by stores with a live backing connection, for
// readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
