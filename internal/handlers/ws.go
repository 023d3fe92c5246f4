package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4 << 10
)

// WebSocketHandler pushes queue state to collaborators over a WebSocket. It
// carries the same frames as Stream, encoded as models.StreamMessage.
type WebSocketHandler struct {
	videos     VideoLookup
	names      NameResolver
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// NewWebSocketHandler creates a WebSocketHandler accepting upgrades from the
// given origins. Requests without an Origin header are accepted.
func NewWebSocketHandler(videos VideoLookup, names NameResolver, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		videos: videos,
		names:  names,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		pingPeriod: wsPingPeriod,
	}
}

// Serve upgrades the request and streams the caller's room until the client
// goes away or the room is retired.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.DebugContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Inbound frames are ignored; reading keeps pongs and close frames flowing.
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	}

	state := q.GetQueueState()
	for {
		rendered := renderQueueState(ctx, h.videos, h.names, q, state)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(models.StreamMessage{Type: "state", State: &rendered}); err != nil {
			return
		}

		next, err := waitOrHeartbeat(ctx, q, state.LastUpdated, h.pingPeriod, ping)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, apperr.ErrRoomClosed):
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteJSON(models.StreamMessage{Type: "closed"})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
				time.Now().Add(wsWriteWait))
			return
		case err != nil:
			return
		}
		state = next
	}
}
