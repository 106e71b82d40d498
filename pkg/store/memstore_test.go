package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

func TestMemStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()

	s, err := ms.CreateSession(ctx, store.CreateSessionParams{
		UserID: "u1",
		Title:  "morning chat",
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if s.ID == "" {
		t.Error("CreateSession() returned empty id")
	}
	if s.DialogueType != types.DialogueHumanAIPrivate {
		t.Errorf("DialogueType = %q, want default %q", s.DialogueType, types.DialogueHumanAIPrivate)
	}
	if s.Status != types.SessionActive {
		t.Errorf("Status = %q, want %q", s.Status, types.SessionActive)
	}

	got, err := ms.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Title != "morning chat" {
		t.Errorf("Title = %q, want %q", got.Title, "morning chat")
	}

	if err := ms.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := ms.GetSession(ctx, s.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemStoreCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()

	tests := []struct {
		name   string
		params store.CreateSessionParams
	}{
		{"missing user id", store.CreateSessionParams{Title: "x"}},
		{"unknown dialogue type", store.CreateSessionParams{UserID: "u1", DialogueType: "PHONE_TREE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ms.CreateSession(ctx, tt.params); !errors.Is(err, store.ErrMalformed) {
				t.Errorf("CreateSession() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestMemStoreTurnOrdering(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()

	s, err := ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Commit a burst of turns fast enough that several share a timestamp;
	// order must still be insertion order.
	const n = 50
	wantIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		role := types.RoleHuman
		if i%2 == 1 {
			role = types.RoleAI
		}
		turn, err := ms.CreateTurn(ctx, store.CreateTurnParams{
			SessionID: s.ID,
			Role:      role,
			Content:   "msg",
		})
		if err != nil {
			t.Fatalf("CreateTurn(%d) error = %v", i, err)
		}
		wantIDs = append(wantIDs, turn.ID)
	}

	turns, err := ms.GetTurns(ctx, s.ID, store.TurnQuery{})
	if err != nil {
		t.Fatalf("GetTurns() error = %v", err)
	}
	if len(turns) != n {
		t.Fatalf("GetTurns() returned %d turns, want %d", len(turns), n)
	}
	for i, turn := range turns {
		if turn.ID != wantIDs[i] {
			t.Fatalf("turn[%d].ID = %q, want %q (insertion order violated)", i, turn.ID, wantIDs[i])
		}
	}
}

func TestMemStoreGetTurnsLimit(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()

	s, _ := ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})
	var last string
	for i := 0; i < 10; i++ {
		turn, err := ms.CreateTurn(ctx, store.CreateTurnParams{SessionID: s.ID, Role: types.RoleHuman, Content: "m"})
		if err != nil {
			t.Fatalf("CreateTurn() error = %v", err)
		}
		last = turn.ID
	}

	turns, err := ms.GetTurns(ctx, s.ID, store.TurnQuery{Limit: 3})
	if err != nil {
		t.Fatalf("GetTurns() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("GetTurns(limit=3) returned %d turns", len(turns))
	}
	if turns[2].ID != last {
		t.Errorf("limited window must keep the newest turns, got last id %q want %q", turns[2].ID, last)
	}
}

func TestMemStoreGetTurnsEmptyNotNil(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()
	s, _ := ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})

	turns, err := ms.GetTurns(ctx, s.ID, store.TurnQuery{})
	if err != nil {
		t.Fatalf("GetTurns() error = %v", err)
	}
	if turns == nil {
		t.Error("GetTurns() on empty session returned nil, want empty slice")
	}
}

func TestMemStoreCreateTurnValidation(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()

	if _, err := ms.CreateTurn(ctx, store.CreateTurnParams{Role: types.RoleHuman}); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("missing session id: error = %v, want ErrMalformed", err)
	}
	if _, err := ms.CreateTurn(ctx, store.CreateTurnParams{SessionID: "s1", Role: "narrator"}); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("unknown role: error = %v, want ErrMalformed", err)
	}
}

func TestMemStoreNormalizesCompositeIDs(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()
	s, _ := ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u1"})

	got, err := ms.GetSession(ctx, "sessions:"+s.ID)
	if err != nil {
		t.Fatalf("GetSession(composite) error = %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("GetSession(composite).ID = %q, want %q", got.ID, s.ID)
	}
}

func TestMemStoreListSessionsByUser(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemStore()

	a, _ := ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u1", Title: "a"})
	b, _ := ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u1", Title: "b"})
	ms.CreateSession(ctx, store.CreateSessionParams{UserID: "u2", Title: "other"})

	// Touch a so it sorts first.
	if err := ms.UpdateSessionActivity(ctx, a.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("UpdateSessionActivity() error = %v", err)
	}

	list, err := ms.ListSessionsByUser(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("ListSessionsByUser() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListSessionsByUser() returned %d sessions, want 2", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("list order = [%s %s], want most recently active first [%s %s]",
			list[0].Title, list[1].Title, a.Title, b.Title)
	}

	page, err := ms.ListSessionsByUser(ctx, "u1", 1, 1)
	if err != nil {
		t.Fatalf("ListSessionsByUser(paged) error = %v", err)
	}
	if len(page) != 1 || page[0].ID != b.ID {
		t.Errorf("paged list = %v, want just session b", page)
	}
}
