package handlers

import (
	"net/http"
	"time"

	"github.com/ytpm/backend/internal/models"
	"github.com/ytpm/backend/internal/queue"
)

// RoomAdmin is the operator view of the room registry.
type RoomAdmin interface {
	Summaries() []queue.Summary
	CleanUpOldPlayerQueues() int
	NumQueues() int
}

// AdminHandler serves the operator endpoints. Routes run behind
// middleware.OperatorOnly.
type AdminHandler struct {
	rooms RoomAdmin
	now   func() time.Time
}

func NewAdminHandler(rooms RoomAdmin) *AdminHandler {
	return &AdminHandler{rooms: rooms, now: time.Now}
}

// QueueStates lists every live room with its idle time.
func (h *AdminHandler) QueueStates(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	summaries := h.rooms.Summaries()

	resp := models.QueueStatesResponse{Rooms: make([]models.RoomSummary, len(summaries))}
	for i, s := range summaries {
		resp.Rooms[i] = models.RoomSummary{
			Key:         s.Key,
			LastTouched: s.LastTouched,
			IdleSeconds: int64(now.Sub(s.LastTouched) / time.Second),
			QueueLength: s.Length,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CleanQueues runs an idle sweep immediately.
func (h *AdminHandler) CleanQueues(w http.ResponseWriter, r *http.Request) {
	deleted := h.rooms.CleanUpOldPlayerQueues()
	writeJSON(w, http.StatusOK, models.CleanQueuesResponse{Deleted: deleted, Remaining: h.rooms.NumQueues()})
}
