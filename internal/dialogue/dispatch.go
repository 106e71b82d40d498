package dialogue

import (
	"context"
	"fmt"

	"github.com/colloquyhq/colloquy/internal/assembler"
	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// TurnEvent is pushed to connected participants when a turn lands in a
// session they are part of.
type TurnEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Turn      *types.Turn `json:"turn"`
}

// processRouted handles the human↔human types: the turn is committed and
// relayed, no model reply is generated.
func (o *Orchestrator) processRouted(ctx context.Context, session *types.Session, req Request) (*Result, error) {
	turn, err := o.commitTurn(ctx, session.ID, types.RoleHuman, req.Text, turnMeta(req))
	if err != nil {
		return nil, err
	}
	o.touch(ctx, session.ID)

	if o.notifier != nil {
		o.notifier.Notify(session.UserID, TurnEvent{
			Type:      "turn",
			SessionID: session.ID,
			Turn:      turn,
		})
	}

	return &Result{
		SessionID: session.ID,
		TurnID:    turn.ID,
		CreatedAt: turn.CreatedAt,
		Metadata:  turn.Metadata,
		Fallback:  store.IsFallback(turn.Metadata),
	}, nil
}

// processReflection handles AI_SELF_REFLECTION: the incoming text is a
// reflection prompt committed as a system turn, and the reply is produced
// under the reflection directive instead of the conversational one.
func (o *Orchestrator) processReflection(ctx context.Context, session *types.Session, req Request) (*Result, error) {
	history, _, err := o.asm.Prefetch(ctx, o.store, session.ID, "")
	if err != nil {
		return nil, err
	}
	if _, err := o.commitTurn(ctx, session.ID, types.RoleSystem, req.Text, nil); err != nil {
		return nil, err
	}

	reflector := assembler.New(assembler.WithDirective(reflectionDirective))
	messages := reflector.Build(assembler.Input{
		DialogueType: session.DialogueType,
		UserText:     req.Text,
		PriorTurns:   history,
	})
	if o.observe != nil {
		o.observe(session.ID, messages)
	}

	reply, degraded, timedOut := o.complete(ctx, messages, req.Text)

	meta := map[string]any{"reflection": true}
	if degraded {
		meta["modelFallback"] = true
	}
	if timedOut {
		meta["timeout"] = true
	}
	aiTurn, err := o.commitTurn(ctx, session.ID, types.RoleAI, reply, meta)
	if err != nil {
		return nil, err
	}
	o.touch(ctx, session.ID)

	return &Result{
		Reply:     reply,
		SessionID: session.ID,
		TurnID:    aiTurn.ID,
		CreatedAt: aiTurn.CreatedAt,
		Metadata:  aiTurn.Metadata,
		Fallback:  degraded || store.IsFallback(aiTurn.Metadata),
	}, nil
}

// processAIExchange handles AI_AI: the seed text starts an exchange of up to
// the configured turn budget, two model personas alternating. The result
// carries the final utterance; the full exchange is in the session.
func (o *Orchestrator) processAIExchange(ctx context.Context, session *types.Session, req Request) (*Result, error) {
	if _, err := o.commitTurn(ctx, session.ID, types.RoleSystem, req.Text, map[string]any{"seed": true}); err != nil {
		return nil, err
	}

	personas := [2]string{"a", "b"}
	last := &Result{SessionID: session.ID}
	degradedAny := false

	for i := 0; i < o.aiTurnBudget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dialogue: exchange aborted: %w", err)
		}
		history, err := o.store.GetTurns(ctx, session.ID, store.TurnQuery{})
		if err != nil {
			return nil, fmt.Errorf("dialogue: load exchange history: %w", err)
		}

		speaker := personas[i%2]
		messages := o.asm.Build(assembler.Input{
			DialogueType: session.DialogueType,
			UserText:     exchangePrompt(req.Text, speaker),
			PriorTurns:   history,
		})
		if o.observe != nil {
			o.observe(session.ID, messages)
		}

		reply, degraded, timedOut := o.complete(ctx, messages, req.Text)
		degradedAny = degradedAny || degraded

		meta := map[string]any{"speaker": speaker}
		if degraded {
			meta["modelFallback"] = true
		}
		if timedOut {
			meta["timeout"] = true
		}
		turn, err := o.commitTurn(ctx, session.ID, types.RoleAI, reply, meta)
		if err != nil {
			return nil, err
		}
		last = &Result{
			Reply:     reply,
			SessionID: session.ID,
			TurnID:    turn.ID,
			CreatedAt: turn.CreatedAt,
			Metadata:  turn.Metadata,
			Fallback:  degradedAny || store.IsFallback(turn.Metadata),
		}

		// A degraded backend will not improve mid-exchange; stop burning
		// the budget on echoes.
		if degraded {
			break
		}
	}
	o.touch(ctx, session.ID)
	return last, nil
}

func exchangePrompt(seed, speaker string) string {
	return fmt.Sprintf("You are participant %q in a dialogue between two AI agents about: %s. Respond to the conversation so far with your next contribution.", speaker, seed)
}
