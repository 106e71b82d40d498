package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/colloquyhq/colloquy/internal/assembler"
	"github.com/colloquyhq/colloquy/internal/tools"
	"github.com/colloquyhq/colloquy/pkg/provider/llm"
	llmmock "github.com/colloquyhq/colloquy/pkg/provider/llm/mock"
	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

type fakeInvoker struct {
	result *tools.Invocation
	err    error
	calls  int
}

func (f *fakeInvoker) MaybeInvoke(context.Context, string) (*tools.Invocation, error) {
	f.calls++
	return f.result, f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []any
}

func (f *fakeNotifier) Notify(_ string, event any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newOrchestrator(t *testing.T, model llm.Provider, opts ...Option) (*Orchestrator, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	return New(st, model, assembler.New(), opts...), st
}

func TestProcessCreatesSessionAndCommitsTurns(t *testing.T) {
	model := &llmmock.Provider{CompleteResult: &llm.CompletionResponse{Content: "hello there"}}
	o, st := newOrchestrator(t, model)

	res, err := o.Process(context.Background(), Request{UserID: "u1", Text: "hi"})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.Reply != "hello there" {
		t.Errorf("Reply = %q, want the model reply", res.Reply)
	}
	if res.SessionID == "" || res.TurnID == "" {
		t.Errorf("Result ids missing: %+v", res)
	}
	if res.Fallback {
		t.Error("Fallback = true on the happy path")
	}

	turns, err := st.GetTurns(context.Background(), res.SessionID, store.TurnQuery{})
	if err != nil {
		t.Fatalf("GetTurns() error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("committed %d turns, want human + ai", len(turns))
	}
	if turns[0].Role != types.RoleHuman || turns[0].Content != "hi" {
		t.Errorf("turns[0] = %s %q, want the human turn first", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != types.RoleAI || turns[1].ID != res.TurnID {
		t.Errorf("turns[1] = %s %s, want the committed reply", turns[1].Role, turns[1].ID)
	}
}

func TestProcessReusesExistingSession(t *testing.T) {
	model := &llmmock.Provider{}
	o, st := newOrchestrator(t, model)
	session, err := st.CreateSession(context.Background(), store.CreateSessionParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	res, err := o.Process(context.Background(), Request{SessionID: session.ID, UserID: "u1", Text: "hi"})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.SessionID != session.ID {
		t.Errorf("SessionID = %s, want the existing session %s", res.SessionID, session.ID)
	}
}

func TestProcessUnknownSessionCreatesReplacement(t *testing.T) {
	o, _ := newOrchestrator(t, &llmmock.Provider{})

	res, err := o.Process(context.Background(), Request{SessionID: "ghost", UserID: "u1", Text: "hi"})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.SessionID == "" || res.SessionID == "ghost" {
		t.Errorf("SessionID = %q, want a freshly created session", res.SessionID)
	}
}

func TestProcessValidation(t *testing.T) {
	o, _ := newOrchestrator(t, &llmmock.Provider{})

	if _, err := o.Process(context.Background(), Request{Text: "hi"}); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("Process(no user) error = %v, want ErrMalformed", err)
	}
	if _, err := o.Process(context.Background(), Request{UserID: "u1"}); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("Process(no text) error = %v, want ErrMalformed", err)
	}
}

func TestProcessModelFailureEchoes(t *testing.T) {
	model := &llmmock.Provider{CompleteError: errors.New("all backends down")}
	o, st := newOrchestrator(t, model)

	res, err := o.Process(context.Background(), Request{UserID: "u1", Text: "important words"})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !res.Fallback {
		t.Error("Fallback = false for an echoed reply")
	}
	if !strings.Contains(res.Reply, "important words") {
		t.Errorf("Reply = %q, want the input echoed back", res.Reply)
	}

	turns, _ := st.GetTurns(context.Background(), res.SessionID, store.TurnQuery{})
	if len(turns) != 2 {
		t.Fatalf("committed %d turns, want the human turn durable despite the failure", len(turns))
	}
	if turns[0].Role != types.RoleHuman {
		t.Errorf("turns[0].Role = %s, want human committed before the model call", turns[0].Role)
	}
	if fb, _ := turns[1].Metadata["modelFallback"].(bool); !fb {
		t.Error("ai turn missing the modelFallback marker")
	}
}

func TestProcessToolInvocation(t *testing.T) {
	model := &llmmock.Provider{CompleteResult: &llm.CompletionResponse{Content: "the answer is 107"}}
	inv := &fakeInvoker{result: &tools.Invocation{Tool: "calculator", Result: "107"}}

	var assembled []types.Message
	o, st := newOrchestrator(t, model,
		WithInvoker(inv),
		WithAssemblyObserver(func(_ string, msgs []types.Message) { assembled = msgs }),
	)

	res, err := o.Process(context.Background(), Request{UserID: "u1", Text: "what is 15*7+22/11"})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0].Tool != "calculator" {
		t.Fatalf("ToolsUsed = %v, want the calculator invocation", res.ToolsUsed)
	}

	turns, _ := st.GetTurns(context.Background(), res.SessionID, store.TurnQuery{})
	if len(turns) != 3 {
		t.Fatalf("committed %d turns, want human + tool + ai", len(turns))
	}
	if turns[1].Role != types.RoleTool || turns[1].Content != "107" {
		t.Errorf("turns[1] = %s %q, want the tool result turn", turns[1].Role, turns[1].Content)
	}

	if len(assembled) < 2 {
		t.Fatalf("assembled %d messages, want the observer to see the spliced prompt", len(assembled))
	}
	toolMsg := assembled[len(assembled)-2]
	if toolMsg.Role != "tool" || toolMsg.Content != "107" {
		t.Errorf("second-to-last message = %s %q, want the tool result before the user message", toolMsg.Role, toolMsg.Content)
	}

	names, _ := turns[2].Metadata["toolsUsed"].([]string)
	if len(names) != 1 || names[0] != "calculator" {
		t.Errorf("ai turn toolsUsed = %v, want [calculator]", turns[2].Metadata["toolsUsed"])
	}
}

func TestProcessRoutedSkipsModel(t *testing.T) {
	model := &llmmock.Provider{}
	notifier := &fakeNotifier{}
	o, st := newOrchestrator(t, model, WithNotifier(notifier))

	res, err := o.Process(context.Background(), Request{
		UserID:       "u1",
		Text:         "see you at eight",
		DialogueType: types.DialogueHumanHumanPrivate,
		Speaker:      "ann",
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.Reply != "" {
		t.Errorf("Reply = %q, want none for a routed dialogue", res.Reply)
	}
	if model.CallCount() != 0 {
		t.Errorf("model called %d times for a human↔human turn, want 0", model.CallCount())
	}
	if notifier.count() != 1 {
		t.Errorf("notifier received %d events, want 1", notifier.count())
	}

	turns, _ := st.GetTurns(context.Background(), res.SessionID, store.TurnQuery{})
	if len(turns) != 1 || turns[0].Metadata["speaker"] != "ann" {
		t.Errorf("turns = %+v, want one human turn carrying the speaker", turns)
	}
}

func TestProcessReflection(t *testing.T) {
	model := &llmmock.Provider{CompleteResult: &llm.CompletionResponse{Content: "I rushed my answers."}}
	var assembled []types.Message
	o, st := newOrchestrator(t, model,
		WithAssemblyObserver(func(_ string, msgs []types.Message) { assembled = msgs }),
	)

	res, err := o.Process(context.Background(), Request{
		UserID:       "u1",
		Text:         "review today's conversations",
		DialogueType: types.DialogueAISelfReflection,
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.Reply != "I rushed my answers." {
		t.Errorf("Reply = %q, want the reflection", res.Reply)
	}

	if len(assembled) == 0 || !strings.Contains(assembled[0].Content, "reflecting") {
		t.Errorf("system message = %+v, want the reflection directive", assembled)
	}

	turns, _ := st.GetTurns(context.Background(), res.SessionID, store.TurnQuery{})
	if len(turns) != 2 || turns[0].Role != types.RoleSystem {
		t.Fatalf("turns = %+v, want the prompt committed as a system turn", turns)
	}
	if refl, _ := turns[1].Metadata["reflection"].(bool); !refl {
		t.Error("ai turn missing the reflection marker")
	}
}

func TestProcessAIExchangeHonorsBudget(t *testing.T) {
	model := &llmmock.Provider{CompleteFunc: func(_ context.Context, call int, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "contribution"}, nil
	}}
	o, st := newOrchestrator(t, model, WithAIAITurnBudget(3))

	res, err := o.Process(context.Background(), Request{
		UserID:       "u1",
		Text:         "debate the merits of tabs versus spaces",
		DialogueType: types.DialogueAIAI,
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if model.CallCount() != 3 {
		t.Errorf("model called %d times, want the turn budget of 3", model.CallCount())
	}

	turns, _ := st.GetTurns(context.Background(), res.SessionID, store.TurnQuery{})
	// Seed system turn plus three AI contributions.
	if len(turns) != 4 {
		t.Fatalf("committed %d turns, want 4", len(turns))
	}
	if turns[0].Role != types.RoleSystem {
		t.Errorf("turns[0].Role = %s, want the seed committed as system", turns[0].Role)
	}
	speakers := []string{}
	for _, turn := range turns[1:] {
		speakers = append(speakers, turn.Metadata["speaker"].(string))
	}
	if speakers[0] != "a" || speakers[1] != "b" || speakers[2] != "a" {
		t.Errorf("speakers = %v, want alternation a, b, a", speakers)
	}
	if res.TurnID != turns[3].ID {
		t.Errorf("TurnID = %s, want the final exchange turn", res.TurnID)
	}
}

func TestProcessAIExchangeStopsOnDegradedModel(t *testing.T) {
	model := &llmmock.Provider{CompleteError: errors.New("down")}
	o, _ := newOrchestrator(t, model, WithAIAITurnBudget(4))

	res, err := o.Process(context.Background(), Request{
		UserID:       "u1",
		Text:         "topic",
		DialogueType: types.DialogueAIAI,
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if model.CallCount() != 1 {
		t.Errorf("model called %d times after degrading, want 1", model.CallCount())
	}
	if !res.Fallback {
		t.Error("Fallback = false for a degraded exchange")
	}
}

func TestProcessToolDecisionFailureFailsTurn(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("registry corrupt")}
	o, _ := newOrchestrator(t, &llmmock.Provider{}, WithInvoker(inv))

	if _, err := o.Process(context.Background(), Request{UserID: "u1", Text: "hi"}); err == nil {
		t.Error("Process() succeeded, want the invoker error surfaced")
	}
}
