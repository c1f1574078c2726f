package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/game"
	"github.com/mcdev12/quizhall/go/internal/models"
	"github.com/mcdev12/quizhall/go/internal/session"
)

// SessionStateResponse is the REST view of a session.
type SessionStateResponse struct {
	Session       *models.GameSession `json:"session"`
	TimeRemaining *int64              `json:"time_remaining_ms,omitempty"`
}

// StateHandler serves the session REST endpoints.
type StateHandler struct {
	sessions Sessions
	verifier *Verifier
	clock    clockwork.Clock
}

func NewStateHandler(sessions Sessions, verifier *Verifier, clock clockwork.Clock) *StateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StateHandler{
		sessions: sessions,
		verifier: verifier,
		clock:    clock,
	}
}

// HandleListSessions handles GET /api/sessions
func (h *StateHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := session.ListFilter{
		TitlePrefix:    q.Get("title_prefix"),
		IncludePrivate: q.Get("include_private") == "true",
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	summaries, err := h.sessions.ListSessions(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// HandleCreateSession handles POST /api/sessions
func (h *StateHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req game.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.sessions.CreateSession(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// HandleGetSessionState handles GET /api/sessions/{id}/state. The viewer is
// the token subject when tokens are enabled, otherwise the participant_id
// query parameter; without one the caller is an anonymous observer, who may
// not read private sessions.
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	viewer := r.URL.Query().Get("participant_id")
	if h.verifier != nil {
		viewer = ""
		if token := tokenFromRequest(r); token != "" {
			claims, err := h.verifier.Verify(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			viewer = claims.Subject
		}
	}

	s, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "failed to get session state")
		return
	}
	if s.Private && s.Participant(viewer) == nil {
		writeJSON(w, http.StatusForbidden, ErrorData{Code: game.CodeNotParticipant, Message: "private session"})
		return
	}

	resp := SessionStateResponse{Session: game.View(s, viewer)}
	if s.Timer != nil {
		remaining := s.Timer.Remaining(h.clock.Now()).Milliseconds()
		resp.TimeRemaining = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDeleteSession handles DELETE /api/sessions/{id}. With tokens
// enabled only the host may delete; otherwise the caller is trusted.
func (h *StateHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	by := ""
	if h.verifier != nil {
		claims, err := h.verifier.Verify(tokenFromRequest(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		by = claims.Subject
	}

	if err := h.sessions.DeleteSession(r.Context(), id, by); err != nil {
		h.writeError(w, err, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StateHandler) writeError(w http.ResponseWriter, err error, msg string) {
	if v, ok := game.IsValidation(err); ok {
		status := http.StatusBadRequest
		switch v.Code {
		case game.CodeForbidden, game.CodeNotParticipant:
			status = http.StatusForbidden
		}
		writeJSON(w, status, ErrorData{Code: v.Code, Message: v.Message})
		return
	}
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorData{Code: codeNotFound, Message: "session not found"})
		return
	}
	log.Error().Err(err).Msg(msg)
	writeJSON(w, http.StatusInternalServerError, ErrorData{Code: codeInternal, Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}/state", h.HandleGetSessionState)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDeleteSession)
}
