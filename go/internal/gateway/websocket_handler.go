package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/game"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// WebSocketHandler upgrades session connections and joins the participant.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	sessions          Sessions
	verifier          *Verifier
}

func NewWebSocketHandler(cm *ConnectionManager, sessions Sessions, verifier *Verifier) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		sessions:          sessions,
		verifier:          verifier,
	}
}

// HandleSessionConnection serves GET /ws/session. Identity comes from a
// token when a verifier is configured, otherwise from query parameters.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	req := game.JoinRequest{
		ParticipantID: q.Get("participant_id"),
		Name:          q.Get("name"),
		Role:          models.Role(q.Get("role")),
	}
	if h.verifier != nil {
		claims, err := h.verifier.Verify(tokenFromRequest(r))
		if err != nil {
			log.Debug().Err(err).Str("session_id", sessionID).Msg("rejected websocket handshake")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		req.ParticipantID = claims.Subject
		if claims.Name != "" {
			req.Name = claims.Name
		}
	}
	if req.ParticipantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	c, err := h.connectionManager.UpgradeConnection(w, r, sessionID, req.ParticipantID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("participant_id", req.ParticipantID).
			Msg("failed to upgrade websocket connection")
		return
	}

	// Registered before joining so the STATE_SYNC addressed to the joiner
	// finds this socket.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), commandTimeout)
	defer cancel()
	if _, err := h.sessions.Join(ctx, sessionID, req); err != nil {
		c.sendError(errorData(err))
		h.connectionManager.Drop(sessionID, req.ParticipantID)
		return
	}
}

// HandleConnectionStats serves GET /ws/stats.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
