package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/logging"
	"github.com/ytpm/backend/internal/models"
)

// Authenticator issues collaborator tokens for a room.
type Authenticator interface {
	Authenticate(roomKey, name string) (string, error)
}

// RoomCounter reports how many rooms are live.
type RoomCounter interface {
	NumQueues() int
}

// SessionHandler lets collaborators join a room and reports service health.
type SessionHandler struct {
	auth  Authenticator
	rooms RoomCounter
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(auth Authenticator, rooms RoomCounter) *SessionHandler {
	return &SessionHandler{auth: auth, rooms: rooms}
}

// Health reports liveness and the number of live rooms.
func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Rooms: h.rooms.NumQueues()})
}

// Auth joins a room by key. The response body is the collaborator token.
func (h *SessionHandler) Auth(w http.ResponseWriter, r *http.Request) {
	roomKey := strings.TrimSpace(r.URL.Query().Get("auth"))
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if roomKey == "" || name == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	token, err := h.auth.Authenticate(roomKey, name)
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadRoomKey, "join attempt with unknown room key")
		writeError(w, http.StatusForbidden, "Invalid auth string")
		return
	case err != nil:
		writeAppError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token))
}
