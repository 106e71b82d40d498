package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/colloquyhq/colloquy/internal/assembler"
	"github.com/colloquyhq/colloquy/internal/dialogue"
	"github.com/colloquyhq/colloquy/internal/proactive"
	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/types"
)

// envelope is the uniform response shape: {"success": true, "data": ...} or
// {"success": false, "error": {"code": ..., "message": ...}}.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}

// writeStoreError maps the store sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrMalformed):
		writeError(w, http.StatusBadRequest, "malformed", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if n := s.inflight.Add(1); n > s.maxInflight {
		s.inflight.Add(-1)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "overloaded", "too many concurrent requests")
		return
	}
	defer s.inflight.Add(-1)

	var req dialogue.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed", "invalid request body: "+err.Error())
		return
	}

	res, err := s.orchestrator.Process(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if s.tracker != nil {
		topic := ""
		if !assembler.IsContinuation(req.Text) {
			topic = req.Text
		}
		s.tracker.RecordActivity(req.UserID, res.SessionID, topic, s.now())
	}
	writeData(w, http.StatusOK, res)
}

// createSessionRequest is the body of POST /api/dialogue/sessions. An omitted
// dialogueType defaults to HUMAN_AI_PRIVATE.
type createSessionRequest struct {
	UserID       string             `json:"userId"`
	Title        string             `json:"title,omitempty"`
	DialogueType types.DialogueType `json:"dialogueType,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed", "invalid session body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "malformed", "userId is required")
		return
	}

	session, err := s.store.CreateSession(r.Context(), store.CreateSessionParams{
		UserID:       req.UserID,
		Title:        req.Title,
		DialogueType: req.DialogueType,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	writeData(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "malformed", "userId is required")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	sessions, err := s.store.ListSessionsByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"items": sessions, "total": len(sessions)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), -1)
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleGetTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := store.TurnQuery{
		Limit:    queryInt(r, "limit", 0),
		BeforeID: r.URL.Query().Get("beforeId"),
	}
	turns, err := s.store.GetTurns(r.Context(), id, q)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"items": turns})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"items": s.registry.List(r.URL.Query().Get("modality"))})
}

func (s *Server) handleGetFrequencySettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotFound, "not_found", "proactive scheduling is disabled")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "malformed", "userId is required")
		return
	}
	writeData(w, http.StatusOK, s.settings.Get(userID))
}

func (s *Server) handlePutFrequencySettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotFound, "not_found", "proactive scheduling is disabled")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "malformed", "userId is required")
		return
	}
	var settings proactive.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "malformed", "invalid settings body: "+err.Error())
		return
	}
	for _, d := range settings.Disabled {
		if !d.IsValid() {
			writeError(w, http.StatusBadRequest, "malformed", "unknown expression type "+string(d))
			return
		}
	}
	s.settings.Put(userID, settings)
	writeData(w, http.StatusOK, settings)
}

// triggerRequest is the body of POST /api/frequency/trigger. SessionID is
// accepted for symmetry with the input endpoint; the scheduler targets the
// user's tracked session.
type triggerRequest struct {
	UserID    string                   `json:"userId"`
	SessionID string                   `json:"sessionId,omitempty"`
	Type      proactive.ExpressionType `json:"expressionType"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusNotFound, "not_found", "proactive scheduling is disabled")
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed", "invalid trigger body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "malformed", "userId is required")
		return
	}

	expr, err := s.scheduler.Trigger(r.Context(), req.UserID, req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "trigger_failed", err.Error())
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{"expression": expr})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
