package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/queue"
)

const heartbeatInterval = 30 * time.Second

// Stream opens a Server-Sent Events connection for the caller's room. It sends
// the current queue state as a "state" event, then another one after every
// change. A heartbeat comment is sent when the room has been quiet for 30
// seconds, and a "closed" event when the room is retired.
func (h *ClientHandler) Stream(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	heartbeat := func() error {
		if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := r.Context()
	state := q.GetQueueState()
	for {
		data, err := json.Marshal(renderQueueState(ctx, h.videos, h.names, q, state))
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
		flusher.Flush()

		next, err := waitOrHeartbeat(ctx, q, state.LastUpdated, heartbeatInterval, heartbeat)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, apperr.ErrRoomClosed):
			fmt.Fprintf(w, "event: closed\ndata: room closed\n\n")
			flusher.Flush()
			return
		case err != nil:
			return
		}
		state = next
	}
}

// waitOrHeartbeat blocks until the room moves past since, calling beat each
// time interval passes without a change. An error from beat ends the wait.
func waitOrHeartbeat(ctx context.Context, q *queue.PlayerQueue, since int64, interval time.Duration, beat func() error) (queue.QueueState, error) {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, interval)
		next, err := q.WaitForChange(waitCtx, since)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if err := beat(); err != nil {
				return queue.QueueState{}, err
			}
			continue
		}
		return next, err
	}
}
