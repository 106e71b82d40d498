package proactive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/colloquyhq/colloquy/pkg/provider/llm"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// templates are the canned fallbacks used when no model is available or the
// model fails. ${topic} is substituted when the expression has one.
var templates = map[ExpressionType]string{
	TypeGreeting:    "Good morning! I hope today treats you well.",
	TypeFarewell:    "It's getting late. Rest well, and talk to you tomorrow.",
	TypeCare:        "It's been a while since we talked. How have you been?",
	TypeReminder:    "Just a gentle reminder from me.",
	TypeShare:       "I was thinking about what you said regarding ${topic}. Any news on that?",
	TypeReflection:  "I was looking back over our recent conversations. It's been good talking with you.",
	TypeCelebration: "Happy holidays! I hope you're celebrating with people you like.",
	TypeSuggestion:  "If you have a spare moment today, a short walk might be nice.",
}

// plannerPrompt asks the model for a single short message of the given type.
const plannerPrompt = "You compose one short, warm, proactive message from an AI companion to a user. Write the message text only, no preamble, at most two sentences."

// Planner turns a decided expression type into message content. A nil model
// yields template content directly.
type Planner struct {
	model llm.Provider
	log   *slog.Logger
}

// NewPlanner returns a planner. model may be nil.
func NewPlanner(model llm.Provider, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{model: model, log: log}
}

// Plan produces the message content for an expression. Model failures fall
// back to the type's template; Plan never fails for a valid type.
func (p *Planner) Plan(ctx context.Context, exprType ExpressionType, topic string) (string, error) {
	template, ok := templates[exprType]
	if !ok {
		return "", fmt.Errorf("proactive: unknown expression type %q", exprType)
	}
	fallback := strings.ReplaceAll(template, "${topic}", topic)

	if p.model == nil {
		return fallback, nil
	}

	instruction := fmt.Sprintf("Message type: %s.", exprType)
	if topic != "" {
		instruction += fmt.Sprintf(" The user's last topic was: %s.", topic)
	}
	resp, err := p.model.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: plannerPrompt},
			{Role: "user", Content: instruction},
		},
		MaxTokens: 120,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		p.log.Warn("proactive planning fell back to template", "type", exprType, "error", err)
		return fallback, nil
	}
	return strings.TrimSpace(resp.Content), nil
}
