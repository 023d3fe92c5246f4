package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/models"
	"github.com/ytpm/backend/internal/queue"
)

// PlayerHandler serves the room's playback device.
type PlayerHandler struct {
	rooms       *queue.Manager
	videos      VideoLookup
	names       NameResolver
	pollTimeout time.Duration
}

// NewPlayerHandler creates a PlayerHandler. A zero pollTimeout lets long polls
// wait until the client disconnects.
func NewPlayerHandler(rooms *queue.Manager, videos VideoLookup, names NameResolver, pollTimeout time.Duration) *PlayerHandler {
	return &PlayerHandler{rooms: rooms, videos: videos, names: names, pollTimeout: pollTimeout}
}

// Register returns the room bound to the player cookie, creating a new room
// and setting the cookie when there is none.
func (h *PlayerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var q *queue.PlayerQueue
	if c, err := r.Cookie(middleware.PlayerCookie); err == nil {
		q, _ = h.rooms.GetPlayerQueueForToken(c.Value)
	}

	if q == nil {
		created, err := h.rooms.CreateNewPlayerQueue()
		if err != nil {
			writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create room", err)
			return
		}
		q = created
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.PlayerCookie,
			Value:    q.PlayerToken(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writeJSON(w, http.StatusOK, models.RegisterResponse{
		QueueKey:    q.Key(),
		QueueLength: q.Length(),
		Token:       q.PlayerToken(),
	})
}

// Poll is the device's long poll. It answers with songs added since the last
// poll or the next command sent to the device.
func (h *PlayerHandler) Poll(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetPlayerQueue(r.Context())

	ctx, cancel := pollContext(r.Context(), h.pollTimeout)
	defer cancel()

	update, err := q.WaitForDeviceUpdate(ctx)
	switch {
	case r.Context().Err() != nil:
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusOK, models.PollUpdate{QueueLength: q.Length()})
		return
	case err != nil:
		writeAppError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.renderPollUpdate(r.Context(), q, update))
}

func (h *PlayerHandler) renderPollUpdate(ctx context.Context, q *queue.PlayerQueue, u queue.DeviceUpdate) models.PollUpdate {
	out := models.PollUpdate{QueueLength: u.QueueLength}
	if u.Command != nil {
		out.Command = string(*u.Command)
	}
	if len(u.Added) == 0 {
		return out
	}

	ids := make([]string, len(u.Added))
	for i, item := range u.Added {
		ids[i] = item.VideoID
	}
	videos := enrichAll(ctx, h.videos, ids)
	mode := q.GetPrivacyMode()

	out.AddedSongs = make([]models.AddedSong, len(u.Added))
	for i, item := range u.Added {
		out.AddedSongs[i] = models.AddedSong{
			Title:        videos[i].Title,
			ThumbnailURL: videos[i].ThumbnailURL,
			AddedBy:      queue.RenderAddedBy(mode, item, h.names.NameFor),
		}
	}
	return out
}

// NextSong advances the room. When there is nothing to play it answers 200
// with an empty body.
func (h *PlayerHandler) NextSong(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetPlayerQueue(r.Context())

	item, ok := q.GetSongToPlay()
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	writeJSON(w, http.StatusOK, models.NextSongResponse{
		AddedBy:     queue.RenderAddedBy(q.GetPrivacyMode(), item, h.names.NameFor),
		QueueLength: q.Length(),
		Video:       enrich(r.Context(), h.videos, item.VideoID),
	})
}

// Update applies a playback state push from the device. The body may be JSON
// or a form.
func (h *PlayerHandler) Update(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetPlayerQueue(r.Context())

	req, err := decodePlayerUpdate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := queue.ParsePlayerEvent(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	// Without "time" the update is unstamped and ordered after whatever the
	// device last sent.
	var eventTime time.Time
	if req.Time > 0 {
		sec, frac := math.Modf(req.Time)
		eventTime = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	}

	applied, err := q.UpdatePlayerState(event, eventTime, queue.PlaybackUpdate{
		VideoID:  req.VideoID,
		Position: req.Position,
		Duration: req.Duration,
	})
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	if !applied {
		slog.DebugContext(r.Context(), "stale player update dropped", slog.String("event", req.Event))
	}

	writeJSON(w, http.StatusOK, models.PlayerUpdateResponse{Applied: applied})
}

func decodePlayerUpdate(r *http.Request) (models.PlayerUpdateRequest, error) {
	var req models.PlayerUpdateRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Event = r.PostForm.Get("event")
	req.VideoID = r.PostForm.Get("videoId")

	var err error
	if req.Time, err = formFloat(r, "time"); err != nil {
		return req, err
	}
	if req.Duration, err = formFloat(r, "duration"); err != nil {
		return req, err
	}
	if req.Position, err = formFloat(r, "position"); err != nil {
		return req, err
	}
	return req, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	v := r.PostForm.Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}
