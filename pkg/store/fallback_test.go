package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// flakyStore fails every call with a transient error until healed.
type flakyStore struct {
	store.Store
	down bool
}

var errDown = errors.New("connection refused")

func (f *flakyStore) CreateSession(ctx context.Context, p store.CreateSessionParams) (*types.Session, error) {
	if f.down {
		return nil, errDown
	}
	return f.Store.CreateSession(ctx, p)
}

func (f *flakyStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	if f.down {
		return nil, errDown
	}
	return f.Store.GetSession(ctx, id)
}

func (f *flakyStore) CreateTurn(ctx context.Context, p store.CreateTurnParams) (*types.Turn, error) {
	if f.down {
		return nil, errDown
	}
	return f.Store.CreateTurn(ctx, p)
}

func (f *flakyStore) GetTurns(ctx context.Context, sessionID string, q store.TurnQuery) ([]types.Turn, error) {
	if f.down {
		return nil, errDown
	}
	return f.Store.GetTurns(ctx, sessionID, q)
}

func TestFallbackFabricatesSessionWhenDown(t *testing.T) {
	ctx := context.Background()
	fs := store.WithFallback(&flakyStore{Store: store.NewMemStore(), down: true})

	s, err := fs.CreateSession(ctx, store.CreateSessionParams{UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v, want fabricated session", err)
	}
	if s.ID == "" {
		t.Error("fabricated session has empty id")
	}
	if s.UserID != "u1" || s.Title != "t" {
		t.Errorf("fabricated session = %+v, want supplied fields preserved", s)
	}
	if !store.IsFallback(s.Metadata) {
		t.Error("fabricated session missing metadata.fallback=true")
	}
}

func TestFallbackFabricatesTurnWhenDown(t *testing.T) {
	ctx := context.Background()
	fs := store.WithFallback(&flakyStore{Store: store.NewMemStore(), down: true})

	turn, err := fs.CreateTurn(ctx, store.CreateTurnParams{
		SessionID: "s1",
		Role:      types.RoleHuman,
		Content:   "hello",
	})
	if err != nil {
		t.Fatalf("CreateTurn() error = %v, want fabricated turn", err)
	}
	if turn.Content != "hello" || turn.SessionID != "s1" {
		t.Errorf("fabricated turn = %+v, want supplied fields preserved", turn)
	}
	if !store.IsFallback(turn.Metadata) {
		t.Error("fabricated turn missing metadata.fallback=true")
	}
}

func TestFallbackMalformedInputFailsFast(t *testing.T) {
	ctx := context.Background()
	fs := store.WithFallback(&flakyStore{Store: store.NewMemStore(), down: true})

	if _, err := fs.CreateTurn(ctx, store.CreateTurnParams{Role: types.RoleHuman}); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("CreateTurn(missing session) error = %v, want ErrMalformed, never a fabricated record", err)
	}
	if _, err := fs.CreateSession(ctx, store.CreateSessionParams{}); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("CreateSession(missing user) error = %v, want ErrMalformed", err)
	}
}

func TestFallbackReadsDegradeToEmpty(t *testing.T) {
	ctx := context.Background()
	fs := store.WithFallback(&flakyStore{Store: store.NewMemStore(), down: true})

	turns, err := fs.GetTurns(ctx, "s1", store.TurnQuery{})
	if err != nil {
		t.Fatalf("GetTurns() error = %v, want degraded empty result", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("GetTurns() = %v, want empty non-nil slice", turns)
	}

	if _, err := fs.GetSession(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSession() while down error = %v, want ErrNotFound", err)
	}
}

func TestFallbackNotFoundPassesThrough(t *testing.T) {
	ctx := context.Background()
	fs := store.WithFallback(&flakyStore{Store: store.NewMemStore()})

	if _, err := fs.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := fs.CreateTurn(ctx, store.CreateTurnParams{
		SessionID: "missing", Role: types.RoleHuman, Content: "x",
	}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CreateTurn(missing session) error = %v, want ErrNotFound", err)
	}
}

func TestFallbackHealthyPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{Store: store.NewMemStore()}
	fs := store.WithFallback(inner)

	s, err := fs.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if store.IsFallback(s.Metadata) {
		t.Error("healthy path must not mark records as fallback")
	}

	turn, err := fs.CreateTurn(ctx, store.CreateTurnParams{SessionID: s.ID, Role: types.RoleHuman, Content: "hi"})
	if err != nil {
		t.Fatalf("CreateTurn() error = %v", err)
	}

	got, err := fs.GetTurns(ctx, s.ID, store.TurnQuery{})
	if err != nil {
		t.Fatalf("GetTurns() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != turn.ID {
		t.Errorf("GetTurns() = %v, want the single stored turn", got)
	}
}

func TestFallbackRecoversWhenStoreHeals(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{Store: store.NewMemStore(), down: true}
	fs := store.WithFallback(inner)

	s1, _ := fs.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})
	if !store.IsFallback(s1.Metadata) {
		t.Fatal("expected fabricated session while down")
	}

	inner.down = false
	s2, err := fs.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateSession() after heal error = %v", err)
	}
	if store.IsFallback(s2.Metadata) {
		t.Error("healed store must persist for real again")
	}
}

func TestFallbackActivityUpdateAbsorbed(t *testing.T) {
	ctx := context.Background()
	fs := store.WithFallback(&flakyStore{Store: store.NewMemStore(), down: true})
	if err := fs.UpdateSessionActivity(ctx, "s1", time.Now()); err != nil {
		t.Errorf("UpdateSessionActivity() while down error = %v, want absorbed nil", err)
	}
}
