package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/colloquyhq/colloquy/internal/observe"
	"github.com/colloquyhq/colloquy/pkg/provider/llm"
	"github.com/colloquyhq/colloquy/pkg/types"
)

const (
	scoreSubstring = 0.9
	scorePattern   = 0.95

	defaultConfidenceHigh = 0.7
	defaultConfidenceLow  = 0.4

	// phraseFloor gates fuzzy phrase matches; anything weaker scores zero.
	phraseFloor = 0.84

	// phraseScale keeps fuzzy matches below the high band under default
	// thresholds, so a misspelled trigger consults the model instead of
	// firing the tool outright.
	phraseScale = 0.69
)

// Invocation is the outcome of one tool call, surfaced to the orchestrator
// and recorded on the AI turn.
type Invocation struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result"`
	Cached bool           `json:"cached,omitempty"`
}

// Invoker decides whether user input warrants a tool call and runs it. The
// decision is hybrid: a cheap trigger pass scores every registered tool, and
// only ambiguous scores consult the model.
type Invoker struct {
	registry *Registry
	model    llm.Provider
	cache    *resultCache
	metrics  *observe.Metrics
	log      *slog.Logger

	high float64
	low  float64
}

// InvokerOption configures an [Invoker].
type InvokerOption func(*Invoker)

// WithConfidenceBands overrides the decision thresholds. Zero values keep the
// defaults (0.7 and 0.4).
func WithConfidenceBands(high, low float64) InvokerOption {
	return func(inv *Invoker) {
		if high > 0 {
			inv.high = high
		}
		if low > 0 {
			inv.low = low
		}
	}
}

// WithCache sizes the result cache.
func WithCache(ttl time.Duration, size int) InvokerOption {
	return func(inv *Invoker) {
		inv.cache = newResultCache(ttl, size)
	}
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(log *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		if log != nil {
			inv.log = log
		}
	}
}

// NewInvoker returns an invoker over registry. model may be nil, in which
// case ambiguous scores resolve to no tool instead of consulting anything.
func NewInvoker(registry *Registry, model llm.Provider, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry: registry,
		model:    model,
		cache:    newResultCache(time.Hour, 100),
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		high:     defaultConfidenceHigh,
		low:      defaultConfidenceLow,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// candidate is one scored tool from the rule pass.
type candidate struct {
	tool  *Tool
	score float64
}

// MaybeInvoke scores input against every tool trigger and, when the decision
// lands, executes the winner. Returns nil when no tool applies. A failing
// tool does not fail the turn: the error is folded into the result string so
// the conversation can continue around it.
func (inv *Invoker) MaybeInvoke(ctx context.Context, input string) (*Invocation, error) {
	top := inv.rulePass(input)

	switch {
	case top != nil && top.score >= inv.high:
		return inv.run(ctx, top.tool, map[string]any{"input": input})
	case top == nil || top.score < inv.low:
		return nil, nil
	}

	// Ambiguous band: let the model decide among the plausible candidates.
	if inv.model == nil {
		return nil, nil
	}
	name, args, err := inv.modelDecision(ctx, input)
	if err != nil {
		inv.log.Warn("tool decision failed, proceeding without a tool", "error", err)
		return nil, nil
	}
	if name == "" {
		return nil, nil
	}
	tool, err := inv.registry.Resolve(name, "")
	if err != nil {
		inv.log.Warn("model chose an unknown tool", "tool", name, "error", err)
		return nil, nil
	}
	if args == nil {
		args = map[string]any{"input": input}
	}
	return inv.run(ctx, tool, args)
}

// rulePass scores every default tool version against input and returns the
// best candidate. Ties prefer chains over single tools, then the
// lexicographically smaller name (defaults() is already name-sorted, so the
// first strictly-better score wins).
func (inv *Invoker) rulePass(input string) *candidate {
	lower := strings.ToLower(input)
	var best *candidate
	for _, tool := range inv.registry.defaults() {
		score := scoreTool(tool, lower)
		if score <= 0 {
			continue
		}
		if best == nil ||
			score > best.score ||
			(score == best.score && tool.Chain && !best.tool.Chain) {
			best = &candidate{tool: tool, score: score}
		}
	}
	return best
}

func scoreTool(tool *Tool, lowerInput string) float64 {
	best := 0.0
	for i := range tool.Triggers {
		trg := &tool.Triggers[i]
		if trg.Substring != "" && strings.Contains(lowerInput, strings.ToLower(trg.Substring)) {
			best = max(best, scoreSubstring)
		}
		if trg.re != nil && trg.re.MatchString(lowerInput) {
			best = max(best, scorePattern)
		}
		if trg.Phrase != "" {
			best = max(best, phraseScore(lowerInput, strings.ToLower(trg.Phrase)))
		}
	}
	return best
}

// phraseScore slides a window of the phrase's word count across the input and
// takes the best Jaro-Winkler similarity, scaled so fuzzy matches land in the
// ambiguous band rather than firing directly.
func phraseScore(lowerInput, phrase string) float64 {
	words := strings.Fields(lowerInput)
	n := len(strings.Fields(phrase))
	if n == 0 || len(words) < n {
		return 0
	}
	best := 0.0
	for i := 0; i+n <= len(words); i++ {
		window := strings.Join(words[i:i+n], " ")
		best = max(best, matchr.JaroWinkler(window, phrase, false))
	}
	if best < phraseFloor {
		return 0
	}
	return best * phraseScale
}

func (inv *Invoker) run(ctx context.Context, tool *Tool, args map[string]any) (*Invocation, error) {
	key := cacheKey(tool.Name, tool.Version, args)
	if tool.Cacheable {
		if result, ok := inv.cache.get(key); ok {
			inv.metrics.RecordToolCall(ctx, tool.Name, "cached")
			return &Invocation{Tool: tool.Name, Args: args, Result: result, Cached: true}, nil
		}
	}

	started := time.Now()
	result, err := tool.Handler(ctx, args)
	inv.metrics.ToolDuration.Record(ctx, time.Since(started).Seconds())
	if err != nil {
		inv.metrics.RecordToolCall(ctx, tool.Name, "error")
		inv.log.Warn("tool failed", "tool", tool.Name, "error", err)
		return &Invocation{
			Tool:   tool.Name,
			Args:   args,
			Result: fmt.Sprintf("[error] %s failed: %v", tool.Name, err),
		}, nil
	}
	inv.metrics.RecordToolCall(ctx, tool.Name, "ok")
	if tool.Cacheable {
		inv.cache.put(key, result)
	}
	return &Invocation{Tool: tool.Name, Args: args, Result: result}, nil
}

// decisionReply is the JSON shape the model is asked to produce.
type decisionReply struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

func (inv *Invoker) modelDecision(ctx context.Context, input string) (string, map[string]any, error) {
	var sb strings.Builder
	sb.WriteString("You decide whether a tool should handle the user's message.\n")
	sb.WriteString("Available tools:\n")
	for _, tool := range inv.registry.defaults() {
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
	}
	sb.WriteString("Reply with JSON only: {\"tool\": \"<name>\", \"args\": {...}}.\n")
	sb.WriteString("If no tool applies, reply {\"tool\": \"\"}.")

	resp, err := inv.model.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: sb.String()},
			{Role: "user", Content: input},
		},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return "", nil, err
	}

	raw := strings.TrimSpace(resp.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	var reply decisionReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &reply); err != nil {
		return "", nil, fmt.Errorf("tools: decision reply is not JSON: %w", err)
	}
	return reply.Tool, reply.Args, nil
}
