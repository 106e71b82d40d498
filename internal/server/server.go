// Package server is the HTTP and WebSocket boundary: the dialogue API, the
// session and tool read endpoints, the proactive frequency controls, the
// push hub, and the health and metrics surfaces.
package server

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/colloquyhq/colloquy/internal/dialogue"
	"github.com/colloquyhq/colloquy/internal/health"
	"github.com/colloquyhq/colloquy/internal/observe"
	"github.com/colloquyhq/colloquy/internal/proactive"
	"github.com/colloquyhq/colloquy/internal/tools"
	"github.com/colloquyhq/colloquy/pkg/store"
)

// defaultMaxInflight caps concurrently processed dialogue inputs.
const defaultMaxInflight = 64

// Server holds the wired components behind the HTTP boundary.
type Server struct {
	orchestrator *dialogue.Orchestrator
	store        store.Store
	registry     *tools.Registry
	scheduler    *proactive.Scheduler
	settings     *proactive.SettingsStore
	tracker      *proactive.Tracker
	hub          *Hub
	metrics      *observe.Metrics
	log          *slog.Logger

	maxInflight int64
	inflight    atomic.Int64
	now         func() time.Time
}

// Option configures a [Server].
type Option func(*Server)

// WithMaxInflight caps concurrent dialogue inputs. Zero keeps the default.
func WithMaxInflight(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInflight = int64(n)
		}
	}
}

// WithScheduler enables the frequency endpoints.
func WithScheduler(sched *proactive.Scheduler, settings *proactive.SettingsStore, tracker *proactive.Tracker) Option {
	return func(s *Server) {
		s.scheduler = sched
		s.settings = settings
		s.tracker = tracker
	}
}

// WithHub enables the WebSocket push endpoint.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New wires a server around the orchestrator, store, and tool registry.
func New(o *dialogue.Orchestrator, st store.Store, registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		orchestrator: o,
		store:        st,
		registry:     registry,
		metrics:      observe.DefaultMetrics(),
		log:          slog.Default(),
		maxInflight:  defaultMaxInflight,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))

	r.Route("/api/dialogue", func(r chi.Router) {
		r.Post("/input", s.handleInput)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Get("/sessions/{id}/turns", s.handleGetTurns)
		r.Get("/tools", s.handleListTools)
	})

	r.Route("/api/frequency", func(r chi.Router) {
		r.Get("/settings", s.handleGetFrequencySettings)
		r.Post("/settings", s.handlePutFrequencySettings)
		r.Put("/settings", s.handlePutFrequencySettings)
		r.Post("/trigger", s.handleTrigger)
	})

	if s.hub != nil {
		r.Get("/api/ws", s.hub.ServeWS)
	}

	health.New(health.StoreChecker(s.store)).Register(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
