package proactive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/colloquyhq/colloquy/internal/dialogue"
	"github.com/colloquyhq/colloquy/internal/observe"
	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// State is an expression's position in its lifecycle. Transitions only move
// forward: proposed, planned, generated, queued, then fired or cancelled.
type State string

const (
	StateProposed  State = "proposed"
	StatePlanned   State = "planned"
	StateGenerated State = "generated"
	StateQueued    State = "queued"
	StateFired     State = "fired"
	StateCancelled State = "cancelled"
)

// ExpressionEvent is the push frame delivered to a user's subscribers when
// an expression fires.
type ExpressionEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Expression is one planned proactive message.
type Expression struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Type      ExpressionType `json:"type"`
	State     State          `json:"state"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	FiredAt   time.Time      `json:"firedAt,omitempty"`

	// Forced marks trigger-endpoint expressions, which bypass the decision
	// pass and quiet windows but still count against the daily cap.
	Forced bool `json:"forced,omitempty"`
}

// defaultMinQuiet is the silence required before a non-forced expression.
const defaultMinQuiet = 15 * time.Minute

// expressionSpacing is the minimum gap between two expressions to the same
// user, independent of the daily cap.
const expressionSpacing = 2 * time.Hour

// Scheduler evaluates tracked users on a tick, plans expressions, and fires
// them through the store and the push boundary.
type Scheduler struct {
	store    store.Store
	planner  *Planner
	tracker  *Tracker
	settings *SettingsStore
	notifier dialogue.Notifier
	metrics  *observe.Metrics
	log      *slog.Logger

	tick     time.Duration
	minQuiet time.Duration
	caps     []int
	queue    chan *Expression
	now      func() time.Time

	mu            sync.Mutex
	pending       map[string]bool // users with a queued expression
	lastExpressed map[string]time.Time
}

// SchedulerConfig carries the scheduler's tunables. Zero values take the
// documented defaults.
type SchedulerConfig struct {
	TickInterval time.Duration
	MinQuiet     time.Duration
	DailyCaps    []int
	QueueSize    int
	Logger       *slog.Logger
	Now          func() time.Time
}

// NewScheduler wires a scheduler. store and tracker are required; planner and
// notifier may be nil (template content, no push).
func NewScheduler(st store.Store, tracker *Tracker, settings *SettingsStore, planner *Planner, notifier dialogue.Notifier, cfg SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.MinQuiet <= 0 {
		cfg.MinQuiet = defaultMinQuiet
	}
	if len(cfg.DailyCaps) != 4 {
		cfg.DailyCaps = defaultDailyCaps
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if planner == nil {
		planner = NewPlanner(nil, cfg.Logger)
	}
	return &Scheduler{
		store:         st,
		planner:       planner,
		tracker:       tracker,
		settings:      settings,
		notifier:      notifier,
		metrics:       observe.DefaultMetrics(),
		log:           cfg.Logger,
		tick:          cfg.TickInterval,
		minQuiet:      cfg.MinQuiet,
		caps:          cfg.DailyCaps,
		queue:         make(chan *Expression, cfg.QueueSize),
		now:           cfg.Now,
		pending:       make(map[string]bool),
		lastExpressed: make(map[string]time.Time),
	}
}

// Run evaluates users every tick and dispatches queued expressions until ctx
// is done. It blocks; callers run it in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case expr := <-s.queue:
			s.fire(ctx, expr)
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

// evaluate runs the decision pass over every tracked user and queues at most
// one expression per user.
func (s *Scheduler) evaluate(ctx context.Context) {
	now := s.now()
	for _, sig := range s.tracker.snapshot(now, s.settings) {
		if s.hasPending(sig.UserID) || !s.spacingElapsed(sig.UserID, now) {
			continue
		}
		settings := s.settings.Get(sig.UserID)
		exprType, ok := decide(sig, settings, s.caps, s.minQuiet)
		if !ok {
			continue
		}
		expr := &Expression{
			ID:        types.NewID(),
			UserID:    sig.UserID,
			SessionID: sig.SessionID,
			Type:      exprType,
			State:     StateProposed,
			CreatedAt: now,
		}
		s.plan(ctx, expr, sig.LastTopic)
	}
}

// plan advances a proposed expression through planning and generation, then
// queues it. A full queue cancels the expression.
func (s *Scheduler) plan(ctx context.Context, expr *Expression, topic string) {
	expr.State = StatePlanned
	content, err := s.planner.Plan(ctx, expr.Type, topic)
	if err != nil {
		expr.State = StateCancelled
		s.metrics.RecordProactive(ctx, string(expr.Type), "cancelled")
		s.log.Warn("proactive planning failed", "user", expr.UserID, "type", expr.Type, "error", err)
		return
	}
	expr.Content = content
	expr.State = StateGenerated

	select {
	case s.queue <- expr:
		expr.State = StateQueued
		s.setPending(expr.UserID, true)
		s.markExpressed(expr.UserID)
	default:
		expr.State = StateCancelled
		s.metrics.RecordProactive(ctx, string(expr.Type), "dropped")
		s.log.Warn("proactive queue full, expression dropped", "user", expr.UserID, "type", expr.Type)
	}
}

// fire commits the expression as a proactive AI turn and pushes it. A user
// turn that landed after the proposal cancels the expression: the user spoke
// first, the planned message is stale.
func (s *Scheduler) fire(ctx context.Context, expr *Expression) {
	defer s.setPending(expr.UserID, false)

	if !expr.Forced && s.tracker.lastActivity(expr.UserID).After(expr.CreatedAt) {
		expr.State = StateCancelled
		s.metrics.RecordProactive(ctx, string(expr.Type), "cancelled")
		s.log.Debug("proactive expression superseded by user activity", "user", expr.UserID, "type", expr.Type)
		return
	}

	turn, err := s.store.CreateTurn(ctx, store.CreateTurnParams{
		SessionID: expr.SessionID,
		Role:      types.RoleAI,
		Content:   expr.Content,
		Metadata: map[string]any{
			"is_proactive":   true,
			"proactive_type": string(expr.Type),
		},
	})
	if err != nil {
		expr.State = StateCancelled
		s.metrics.RecordProactive(ctx, string(expr.Type), "failed")
		s.log.Error("proactive turn commit failed", "user", expr.UserID, "type", expr.Type, "error", err)
		return
	}

	expr.State = StateFired
	expr.FiredAt = s.now()
	s.tracker.countFired(expr.UserID)
	s.metrics.RecordProactive(ctx, string(expr.Type), "fired")

	if s.notifier != nil {
		s.notifier.Notify(expr.UserID, ExpressionEvent{
			Type:      "proactive_expression",
			SessionID: expr.SessionID,
			Content:   turn.Content,
			Metadata:  turn.Metadata,
		})
	}
	s.log.Info("proactive expression fired", "user", expr.UserID, "type", expr.Type, "turn_id", turn.ID)
}

// Trigger plans and queues a forced expression for the user, bypassing the
// decision pass and quiet windows but not the daily cap. The user must have
// been seen at least once so a target session exists.
func (s *Scheduler) Trigger(ctx context.Context, userID string, exprType ExpressionType) (*Expression, error) {
	if !exprType.IsValid() {
		return nil, fmt.Errorf("proactive: unknown expression type %q", exprType)
	}
	last := s.tracker.lastActivity(userID)
	if last.IsZero() {
		return nil, fmt.Errorf("proactive: unknown user %q", userID)
	}

	sig := s.signalsFor(userID)
	if sig.FiredToday >= capFor(sig.Stage, s.caps) {
		return nil, fmt.Errorf("proactive: daily cap reached for %q", userID)
	}
	// Reserve the user's pending slot before planning; a second trigger
	// arriving before the queue drains must not slip past the cap check.
	if !s.reservePending(userID) {
		return nil, fmt.Errorf("proactive: an expression is already queued for %q", userID)
	}
	expr := &Expression{
		ID:        types.NewID(),
		UserID:    userID,
		SessionID: sig.SessionID,
		Type:      exprType,
		State:     StateProposed,
		CreatedAt: s.now(),
		Forced:    true,
	}
	s.plan(ctx, expr, sig.LastTopic)
	if expr.State != StateQueued {
		s.setPending(userID, false)
		return expr, fmt.Errorf("proactive: trigger for %q was not queued", userID)
	}
	return expr, nil
}

func (s *Scheduler) signalsFor(userID string) Signals {
	for _, sig := range s.tracker.snapshot(s.now(), s.settings) {
		if sig.UserID == userID {
			return sig
		}
	}
	return Signals{UserID: userID}
}

func (s *Scheduler) hasPending(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[userID]
}

// reservePending atomically claims the user's pending slot, reporting false
// when an expression is already queued.
func (s *Scheduler) reservePending(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[userID] {
		return false
	}
	s.pending[userID] = true
	return true
}

func (s *Scheduler) setPending(userID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.pending[userID] = true
	} else {
		delete(s.pending, userID)
	}
}

func (s *Scheduler) markExpressed(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastExpressed[userID] = s.now()
}

func (s *Scheduler) spacingElapsed(userID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastExpressed[userID]
	return !ok || now.Sub(last) >= expressionSpacing
}
