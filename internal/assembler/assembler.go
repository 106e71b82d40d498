// Package assembler builds the model-facing message list for every dialogue
// completion.
//
// The assembled shape is always: one system message (base directive,
// optional continuity clause, optional caller-context block, optional
// recalled remarks), the prior turns in chronological order, then the current
// user input as the final message. Assembly is deterministic: the same
// inputs always produce the same byte-identical message list.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// DefaultDirective is the base system directive used when none is configured.
const DefaultDirective = "You are a thoughtful conversation partner. Reply naturally and concisely, staying consistent with the conversation so far."

// defaultTokenBudget bounds the prior-turn history included in the prompt.
const defaultTokenBudget = 1000

// recallLimit caps how many semantically similar turns are recalled when the
// history had to be truncated.
const recallLimit = 3

// Assembler builds completion message lists. Safe for concurrent use.
type Assembler struct {
	directive string
	budget    int
	searcher  store.SemanticSearcher
}

// Option is a functional option for [New].
type Option func(*Assembler)

// WithDirective overrides the base system directive.
func WithDirective(d string) Option {
	return func(a *Assembler) {
		if d != "" {
			a.directive = d
		}
	}
}

// WithTokenBudget overrides the prior-turn token budget.
func WithTokenBudget(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.budget = n
		}
	}
}

// WithSemanticSearcher enables recall of similar earlier turns when the
// recent history alone no longer fits the budget.
func WithSemanticSearcher(s store.SemanticSearcher) Option {
	return func(a *Assembler) { a.searcher = s }
}

// New creates an [Assembler] with the default directive and budget.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		directive: DefaultDirective,
		budget:    defaultTokenBudget,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Input carries everything Build needs for one completion.
type Input struct {
	// DialogueType selects role mapping nuances for multi-party sessions.
	DialogueType types.DialogueType

	// UserText is the current input, becoming the final user message.
	UserText string

	// PriorTurns is the session history, oldest first. Build re-sorts
	// defensively; out-of-order input never produces an out-of-order prompt.
	PriorTurns []types.Turn

	// CallerContext is the optional typed context supplied with the request.
	CallerContext []ContextItem

	// Recalled holds semantically similar earlier turns, surfaced in the
	// system message only when the recent history was truncated.
	Recalled []types.Turn
}

// Prefetch concurrently loads the session history and, when a semantic
// searcher is configured, similar earlier turns for userText.
func (a *Assembler) Prefetch(ctx context.Context, st store.Store, sessionID, userText string) (history, recalled []types.Turn, err error) {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		turns, err := st.GetTurns(egCtx, sessionID, store.TurnQuery{})
		if err != nil {
			return fmt.Errorf("assembler: load history: %w", err)
		}
		history = turns
		return nil
	})
	if a.searcher != nil && userText != "" {
		eg.Go(func() error {
			similar, err := a.searcher.SearchSimilar(egCtx, sessionID, userText, recallLimit)
			if err != nil {
				// Recall is an enrichment; its failure never blocks assembly.
				return nil
			}
			recalled = similar
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return history, recalled, nil
}

// Build assembles the completion message list for in.
func (a *Assembler) Build(in Input) []types.Message {
	turns := make([]types.Turn, len(in.PriorTurns))
	copy(turns, in.PriorTurns)
	sort.SliceStable(turns, func(i, j int) bool {
		if !turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].CreatedAt.Before(turns[j].CreatedAt)
		}
		return turns[i].ID < turns[j].ID
	})

	included, truncated := a.fitBudget(turns)

	var sys strings.Builder
	sys.WriteString(a.directive)

	if IsContinuation(in.UserText) {
		topic := ExtractTopic(turns)
		if topic != "" {
			fmt.Fprintf(&sys, "\n\nThe user wants to continue the previous topic: %s", topic)
		} else {
			sys.WriteString("\n\nThe user wants to continue the previous topic.")
		}
	}

	if block := FormatContext(in.CallerContext); block != "" {
		sys.WriteString("\n\n")
		sys.WriteString(clipToBudget(block, a.budget))
	}

	if truncated && len(in.Recalled) > 0 {
		sys.WriteString("\n\nEarlier in this conversation:")
		for _, t := range in.Recalled {
			fmt.Fprintf(&sys, "\n- %s: %s", t.Role.MessageRole(), clip(t.Content, 200))
		}
	}

	messages := make([]types.Message, 0, len(included)+2)
	messages = append(messages, types.Message{Role: "system", Content: sys.String()})
	for _, t := range included {
		messages = append(messages, types.Message{
			Role:    t.Role.MessageRole(),
			Content: t.Content,
			Name:    turnName(in.DialogueType, t),
		})
	}
	messages = append(messages, types.Message{Role: "user", Content: in.UserText})
	return messages
}

// fitBudget keeps the newest turns whose estimated token cost fits the
// budget. The oldest included turn may be clipped to its tail, marked with a
// leading ellipsis.
func (a *Assembler) fitBudget(turns []types.Turn) (included []types.Turn, truncated bool) {
	spent := 0
	cut := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := estimateTokens(turns[i].Content) + 4
		if spent+cost > a.budget {
			remaining := a.budget - spent
			if remaining > 8 {
				// Partial fit: keep the tail of this turn.
				keepChars := (remaining - 4) * 4
				t := turns[i]
				if runes := []rune(t.Content); len(runes) > keepChars {
					t.Content = "…" + string(runes[len(runes)-keepChars:])
				}
				included = append([]types.Turn{t}, turns[i+1:cut]...)
				return included, true
			}
			return append([]types.Turn{}, turns[i+1:cut]...), true
		}
		spent += cost
	}
	return append([]types.Turn{}, turns[:cut]...), false
}

// turnName labels multi-party turns with the speaker when the metadata names
// one. Private sessions leave names empty.
func turnName(dt types.DialogueType, t types.Turn) string {
	switch dt {
	case types.DialogueHumanAIGroup, types.DialogueHumanHumanGroup, types.DialogueAIMultiHumanGroup:
		if name, ok := t.Metadata["speaker"].(string); ok {
			return name
		}
	}
	return ""
}

// estimateTokens approximates token cost as chars/4, the same heuristic the
// providers use for CountTokens.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// clipToBudget truncates s from the tail once its estimated token cost
// exceeds budget, marking the cut with an ellipsis.
func clipToBudget(s string, budget int) string {
	if estimateTokens(s) <= budget {
		return s
	}
	keep := budget * 4
	runes := []rune(s)
	if len(runes) <= keep {
		return s
	}
	return string(runes[:keep]) + "…"
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
