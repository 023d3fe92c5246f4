package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytpm/backend/internal/broker"
	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/models"
	"github.com/ytpm/backend/internal/queue"
	"github.com/ytpm/backend/internal/services"
)

// wsServer serves h for q as if middleware.ClientAuth had already run.
func wsServer(t *testing.T, h *WebSocketHandler, q *queue.PlayerQueue) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := &middleware.Client{Token: "tok", Claims: &services.Claims{RoomKey: q.Key()}, Queue: q}
		h.Serve(w, r.WithContext(context.WithValue(r.Context(), middleware.ClientKey, client)))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMessage(t *testing.T, conn *websocket.Conn) models.StreamMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocketHandler_PushesChanges(t *testing.T) {
	room := newTestRoom(t, queue.ManagerOptions{})
	h := NewWebSocketHandler(&fakeVideos{}, fakeNames{}, []string{"http://localhost:4200"})
	url := wsServer(t, h, room.q)

	header := http.Header{}
	header.Set("Origin", "http://localhost:4200")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != "state" || first.State == nil || len(first.State.Queue) != 0 {
		t.Fatalf("first message = %+v", first)
	}

	deadline := time.Now().Add(time.Second)
	for room.bus.Listeners(broker.ClientTopic(room.q.Key())) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never started waiting")
		}
		time.Sleep(time.Millisecond)
	}
	enqueue(t, room.q, "abc", "tok")

	second := readMessage(t, conn)
	if second.Type != "state" || second.State == nil {
		t.Fatalf("second message = %+v", second)
	}
	if len(second.State.Queue) != 1 || second.State.Queue[0].VideoID != "abc" {
		t.Errorf("queue = %+v", second.State.Queue)
	}
	if second.State.LastUpdated <= first.State.LastUpdated {
		t.Errorf("LastUpdated did not advance: %d -> %d", first.State.LastUpdated, second.State.LastUpdated)
	}
}

func TestWebSocketHandler_ClosedRoom(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	room := newTestRoom(t, queue.ManagerOptions{IdleTimeout: time.Minute, Clock: func() time.Time { return now }})
	now = now.Add(time.Hour)
	room.rooms.CleanUpOldPlayerQueues()

	h := NewWebSocketHandler(&fakeVideos{}, fakeNames{}, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsServer(t, h, room.q), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != "state" {
		t.Fatalf("first message type = %q", msg.Type)
	}
	if msg := readMessage(t, conn); msg.Type != "closed" || msg.State != nil {
		t.Fatalf("second message = %+v", msg)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() error = %v, want normal closure", err)
	}
}

func TestWebSocketHandler_ForbiddenOrigin(t *testing.T) {
	room := newTestRoom(t, queue.ManagerOptions{})
	h := NewWebSocketHandler(&fakeVideos{}, fakeNames{}, []string{"http://localhost:4200"})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsServer(t, h, room.q), header)
	if err == nil {
		t.Fatal("Dial() succeeded for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}
