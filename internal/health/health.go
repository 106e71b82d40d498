// Package health provides HTTP liveness and readiness handlers.
//
//   - /healthz — liveness probe; always 200 while the process serves HTTP.
//   - /readyz  — readiness probe; 200 only when every registered [Checker]
//     passes (typically the store connection).
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map holding each named checker's result.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colloquyhq/colloquy/pkg/store"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named health check. Check returns nil when the dependency is
// healthy and must respect context cancellation.
type Checker struct {
	// Name appears as a key in the JSON response (e.g. "store").
	Name string

	// Check probes the dependency.
	Check func(ctx context.Context) error
}

// StoreChecker builds a Checker for the session store. Stores without a live
// backing connection (the in-memory store, or a fallback wrapper around one)
// always report healthy.
func StoreChecker(s store.Store) Checker {
	type unwrapper interface{ Unwrap() store.Store }
	for {
		if u, ok := s.(unwrapper); ok {
			s = u.Unwrap()
			continue
		}
		break
	}
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if p, ok := s.(store.Pinger); ok {
				return p.Ping(ctx)
			}
			return nil
		},
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating the given checkers, sequentially and in
// order, on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each check
// runs with a [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
