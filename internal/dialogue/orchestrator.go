// Package dialogue implements the turn pipeline: resolve the session, commit
// the incoming turn, assemble the prompt, decide on a tool, complete against
// the model, and commit the reply. Every dialogue type runs through the same
// per-turn contract; [Orchestrator.Process] dispatches on the session's type.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/colloquyhq/colloquy/internal/assembler"
	"github.com/colloquyhq/colloquy/internal/observe"
	"github.com/colloquyhq/colloquy/internal/tools"
	"github.com/colloquyhq/colloquy/pkg/provider/llm"
	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// echoFallback is the reply produced when every model backend failed. The
// user's text is echoed so the turn is never silently lost.
const echoFallback = "I received your message but cannot generate an intelligent reply right now. Echoing it back: %s"

// defaultModelTimeout bounds a single completion call.
const defaultModelTimeout = 60 * time.Second

// defaultAIAITurnBudget bounds one AI_AI exchange round.
const defaultAIAITurnBudget = 4

// reflectionDirective replaces the conversational directive for
// AI_SELF_REFLECTION sessions.
const reflectionDirective = "You are reflecting on your own recent conversation. Examine the prior turns, note what went well and what did not, and state one concrete way to improve. Speak in the first person."

// ToolInvoker decides whether input warrants a tool call and runs it. Nil
// invocations mean "no tool applies".
type ToolInvoker interface {
	MaybeInvoke(ctx context.Context, input string) (*tools.Invocation, error)
}

// Notifier receives server-initiated events for a user: replies in routed
// multi-party sessions and proactive expressions.
type Notifier interface {
	Notify(userID string, event any)
}

// Request is one incoming utterance.
type Request struct {
	// SessionID targets an existing session. Empty creates a new one.
	SessionID string `json:"sessionId"`

	// UserID identifies the speaker. Required.
	UserID string `json:"userId"`

	// Text is the utterance. Required.
	Text string `json:"input"`

	// DialogueType applies when a session is created; an existing session's
	// type always wins.
	DialogueType types.DialogueType `json:"dialogueType,omitempty"`

	// Context is optional typed caller context folded into the system message.
	Context []assembler.ContextItem `json:"context,omitempty"`

	// Speaker names the participant in group sessions, recorded on the turn.
	Speaker string `json:"speaker,omitempty"`
}

// Result is the per-turn outcome handed to the transport layer. The JSON
// names are the wire contract of POST /api/dialogue/input; degraded paths
// are visible only through Metadata (fallback, modelFallback, timeout).
type Result struct {
	TurnID    string         `json:"id"`
	Input     string         `json:"input"`
	Reply     string         `json:"response"`
	SessionID string         `json:"sessionId"`
	CreatedAt time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// ToolsUsed, ContextUsed, and Fallback summarize the pipeline for
	// in-process callers; the wire carries them inside Metadata.
	ToolsUsed   []tools.Invocation `json:"-"`
	ContextUsed bool               `json:"-"`
	Fallback    bool               `json:"-"`
}

// Orchestrator runs the turn pipeline. Safe for concurrent use.
type Orchestrator struct {
	store    store.Store
	model    llm.Provider
	asm      *assembler.Assembler
	invoker  ToolInvoker
	notifier Notifier
	metrics  *observe.Metrics
	log      *slog.Logger

	modelTimeout time.Duration
	aiTurnBudget int
	temperature  float64
	maxTokens    int
	observe      func(sessionID string, messages []types.Message)
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithInvoker enables tool invocation.
func WithInvoker(inv ToolInvoker) Option {
	return func(o *Orchestrator) { o.invoker = inv }
}

// WithNotifier routes replies and multi-party turns to connected participants.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithModelTimeout bounds each completion call.
func WithModelTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.modelTimeout = d
		}
	}
}

// WithAIAITurnBudget caps the turns generated per AI_AI exchange.
func WithAIAITurnBudget(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.aiTurnBudget = n
		}
	}
}

// WithSampling sets the completion temperature and token cap passed to the
// model. Zero values keep the provider defaults.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithAssemblyObserver registers a hook that sees every assembled message
// list before it is sent to the model.
func WithAssemblyObserver(fn func(sessionID string, messages []types.Message)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// New creates an [Orchestrator]. store, model, and asm are required.
func New(st store.Store, model llm.Provider, asm *assembler.Assembler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        st,
		model:        model,
		asm:          asm,
		metrics:      observe.DefaultMetrics(),
		log:          slog.Default(),
		modelTimeout: defaultModelTimeout,
		aiTurnBudget: defaultAIAITurnBudget,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs one utterance through the pipeline appropriate for the
// session's dialogue type.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if req.UserID == "" {
		return nil, fmt.Errorf("dialogue: %w: user id is required", store.ErrMalformed)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("dialogue: %w: text is required", store.ErrMalformed)
	}

	session, fabricated, err := o.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch session.DialogueType {
	case types.DialogueHumanHumanPrivate, types.DialogueHumanHumanGroup:
		res, err = o.processRouted(ctx, session, req)
	case types.DialogueAISelfReflection:
		res, err = o.processReflection(ctx, session, req)
	case types.DialogueAIAI:
		res, err = o.processAIExchange(ctx, session, req)
	default:
		res, err = o.processConversational(ctx, session, req)
	}
	if err != nil {
		return nil, err
	}
	res.Input = req.Text
	if fabricated {
		res.Fallback = true
		res.Metadata = withMeta(res.Metadata, "fallback", true)
	}

	o.metrics.RecordTurn(ctx, string(types.RoleHuman), string(session.DialogueType))
	o.metrics.PipelineDuration.Record(ctx, time.Since(started).Seconds())
	return res, nil
}

// resolveSession loads the target session, creating one when the request
// names none or names one that no longer exists.
func (o *Orchestrator) resolveSession(ctx context.Context, req Request) (*types.Session, bool, error) {
	if req.SessionID != "" {
		session, err := o.store.GetSession(ctx, req.SessionID)
		if err == nil {
			return session, store.IsFallback(session.Metadata), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("dialogue: resolve session: %w", err)
		}
		o.log.Info("session not found, creating a replacement", "session_id", req.SessionID)
	}

	session, err := o.store.CreateSession(ctx, store.CreateSessionParams{
		UserID:       req.UserID,
		Title:        clipTitle(req.Text),
		DialogueType: req.DialogueType,
	})
	if err != nil {
		return nil, false, fmt.Errorf("dialogue: create session: %w", err)
	}
	o.metrics.ActiveSessions.Add(ctx, 1)
	return session, store.IsFallback(session.Metadata), nil
}

// processConversational is the full pipeline: history, tool decision,
// completion, committed reply. Covers the private and group human↔AI types.
func (o *Orchestrator) processConversational(ctx context.Context, session *types.Session, req Request) (*Result, error) {
	history, recalled, err := o.asm.Prefetch(ctx, o.store, session.ID, req.Text)
	if err != nil {
		return nil, err
	}

	// The incoming turn is durable before any model work happens; a model
	// failure must never lose the user's words.
	humanMeta := turnMeta(req)
	if _, err := o.commitTurn(ctx, session.ID, types.RoleHuman, req.Text, humanMeta); err != nil {
		return nil, err
	}

	messages := o.asm.Build(assembler.Input{
		DialogueType:  session.DialogueType,
		UserText:      req.Text,
		PriorTurns:    history,
		CallerContext: req.Context,
		Recalled:      recalled,
	})

	var used []tools.Invocation
	if o.invoker != nil {
		invocation, err := o.invoker.MaybeInvoke(ctx, req.Text)
		if err != nil {
			return nil, fmt.Errorf("dialogue: tool decision: %w", err)
		}
		if invocation != nil {
			used = append(used, *invocation)
			toolMeta := map[string]any{"tool": invocation.Tool, "cached": invocation.Cached}
			if _, err := o.commitTurn(ctx, session.ID, types.RoleTool, invocation.Result, toolMeta); err != nil {
				return nil, err
			}
			messages = spliceToolResult(messages, invocation)
		}
	}

	if o.observe != nil {
		o.observe(session.ID, messages)
	}

	reply, degraded, timedOut := o.complete(ctx, messages, req.Text)

	aiMeta := map[string]any{"contextUsed": len(req.Context) > 0}
	if len(used) > 0 {
		names := make([]string, len(used))
		for i, u := range used {
			names[i] = u.Tool
		}
		aiMeta["toolsUsed"] = names
	}
	if degraded {
		aiMeta["modelFallback"] = true
	}
	if timedOut {
		aiMeta["timeout"] = true
	}
	aiTurn, err := o.commitTurn(ctx, session.ID, types.RoleAI, reply, aiMeta)
	if err != nil {
		return nil, err
	}
	o.touch(ctx, session.ID)

	return &Result{
		Reply:       reply,
		SessionID:   session.ID,
		TurnID:      aiTurn.ID,
		CreatedAt:   aiTurn.CreatedAt,
		Metadata:    aiTurn.Metadata,
		ToolsUsed:   used,
		ContextUsed: len(req.Context) > 0,
		Fallback:    degraded || store.IsFallback(aiTurn.Metadata),
	}, nil
}

// complete calls the model under the configured timeout. Any failure,
// including having no model at all, degrades to the echo reply rather than
// failing the turn. timedOut distinguishes deadline expiry from other failures.
func (o *Orchestrator) complete(ctx context.Context, messages []types.Message, userText string) (reply string, degraded, timedOut bool) {
	if o.model == nil {
		return fmt.Sprintf(echoFallback, userText), true, false
	}
	callCtx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	started := time.Now()
	resp, err := o.model.Complete(callCtx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	o.metrics.LLMDuration.Record(ctx, time.Since(started).Seconds())
	if err != nil {
		o.log.Error("model completion failed, echoing input", "error", err)
		o.metrics.RecordFallback(ctx, "model")
		return fmt.Sprintf(echoFallback, userText), true, errors.Is(err, context.DeadlineExceeded)
	}
	return resp.Content, false, false
}

func (o *Orchestrator) commitTurn(ctx context.Context, sessionID string, role types.Role, content string, meta map[string]any) (*types.Turn, error) {
	turn, err := o.store.CreateTurn(ctx, store.CreateTurnParams{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  meta,
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: commit %s turn: %w", role, err)
	}
	return turn, nil
}

// touch advances the session's activity clock. Failures are logged, never
// surfaced: activity tracking must not fail a completed turn.
func (o *Orchestrator) touch(ctx context.Context, sessionID string) {
	if err := o.store.UpdateSessionActivity(ctx, sessionID, time.Now().UTC()); err != nil {
		o.log.Warn("session activity update failed", "session_id", sessionID, "error", err)
	}
}

// spliceToolResult inserts the tool result before the final user message so
// the model sees it as part of the conversation.
func spliceToolResult(messages []types.Message, inv *tools.Invocation) []types.Message {
	toolMsg := types.Message{
		Role:    "tool",
		Content: inv.Result,
		Name:    inv.Tool,
	}
	if n := len(messages); n > 0 {
		out := make([]types.Message, 0, n+1)
		out = append(out, messages[:n-1]...)
		out = append(out, toolMsg, messages[n-1])
		return out
	}
	return []types.Message{toolMsg}
}

// withMeta sets key on m, allocating when m is nil.
func withMeta(m map[string]any, key string, value any) map[string]any {
	if m == nil {
		m = make(map[string]any, 1)
	}
	m[key] = value
	return m
}

func turnMeta(req Request) map[string]any {
	if req.Speaker == "" {
		return nil
	}
	return map[string]any{"speaker": req.Speaker}
}

// clipTitle derives a session title from the first utterance.
func clipTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= 48 {
		return text
	}
	return string(runes[:48]) + "…"
}
