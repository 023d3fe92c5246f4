package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/models"
	"github.com/ytpm/backend/internal/queue"
	"github.com/ytpm/backend/internal/services"
)

const defaultHistoryLimit = 20

// ClientHandler serves collaborators. Every route runs behind
// middleware.ClientAuth, which resolves the caller's room.
type ClientHandler struct {
	videos      VideoLookup
	names       NameResolver
	pollTimeout time.Duration
}

// NewClientHandler creates a ClientHandler. A zero pollTimeout lets long polls
// wait until the client disconnects.
func NewClientHandler(videos VideoLookup, names NameResolver, pollTimeout time.Duration) *ClientHandler {
	return &ClientHandler{videos: videos, names: names, pollTimeout: pollTimeout}
}

// Poll returns the current playback state with the playing video's details.
func (h *ClientHandler) Poll(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue
	state := q.GetPlayerState()

	resp := models.ClientPollResponse{
		Duration:    state.Duration,
		PlayerState: string(state.State),
		Position:    state.Position,
	}
	if state.VideoID != "" {
		v := enrich(r.Context(), h.videos, state.VideoID)
		resp.Video = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// PollV2 is the diff long poll. It answers immediately when the room changed
// after "since", otherwise it waits for the next change.
func (h *ClientHandler) PollV2(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue

	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'since' value")
		return
	}

	ctx, cancel := pollContext(r.Context(), h.pollTimeout)
	defer cancel()

	state, err := q.WaitForChange(ctx, since)
	switch {
	case r.Context().Err() != nil:
		return
	case errors.Is(err, context.DeadlineExceeded):
		state = q.GetQueueState()
	case err != nil:
		writeAppError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderQueueState(r.Context(), h.videos, h.names, q, state))
}

func parseSince(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// Enqueue adds a video by ID or URL. "next=true" puts it at the front and
// "noinfluence=true" keeps it out of autoplay recommendations.
func (h *ClientHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	client := middleware.GetClient(r.Context())
	query := r.URL.Query()

	videoID := strings.TrimSpace(query.Get("videoId"))
	if videoID == "" && query.Get("url") != "" {
		id, err := services.VideoIDFromURL(query.Get("url"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid video URL: "+query.Get("url"))
			return
		}
		videoID = id
	}
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	item := queue.QueueItem{
		VideoID:   videoID,
		AddedBy:   client.Token,
		Influence: queue.InfluenceUserAdded,
	}
	if query.Get("noinfluence") == "true" {
		item.Influence = queue.InfluenceNone
	}

	var (
		position int
		err      error
	)
	if query.Get("next") == "true" {
		position, err = client.Queue.AddToFront(item)
	} else {
		position, err = client.Queue.Enqueue(item)
	}
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.EnqueueResponse{
		Video:         enrich(r.Context(), h.videos, videoID),
		QueuePosition: position,
	})
}

// Dequeue removes a video. With "position" the removal only happens if the
// video is still at that position; without it the caller's own copy is
// preferred.
func (h *ClientHandler) Dequeue(w http.ResponseWriter, r *http.Request) {
	client := middleware.GetClient(r.Context())
	query := r.URL.Query()

	videoID := strings.TrimSpace(query.Get("videoId"))
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "'videoId' query parameter is required")
		return
	}

	var (
		item queue.QueueItem
		err  error
	)
	if raw := query.Get("position"); raw != "" {
		position, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "invalid 'position' value")
			return
		}
		item, err = client.Queue.DequeueAt(position, videoID, client.Token)
	} else {
		item, err = client.Queue.DequeueVideo(videoID, client.Token)
	}
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.DequeueResponse{
		Video:       enrich(r.Context(), h.videos, item.VideoID),
		QueueLength: client.Queue.Length(),
	})
}

// QueueState returns the queue with video details.
func (h *ClientHandler) QueueState(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue
	writeJSON(w, http.StatusOK, renderQueueState(r.Context(), h.videos, h.names, q, q.GetQueueState()))
}

// AutoplayBlacklist adds a video to or removes it from the autoplay blacklist.
func (h *ClientHandler) AutoplayBlacklist(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue
	videoID := r.URL.Query().Get("videoId")
	action := strings.ToLower(r.URL.Query().Get("action"))

	if videoID == "" || action == "" {
		writeError(w, http.StatusBadRequest, "'videoId' and 'action' query parameters are required")
		return
	}

	var err error
	switch action {
	case "add":
		err = q.PreventAutoPlay(videoID)
	case "remove":
		err = q.AllowAutoPlay(videoID)
	default:
		writeError(w, http.StatusBadRequest, "Invalid value for 'action'. Valid options are: add, remove")
		return
	}
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.BlacklistResponse{VideoID: videoID, Blocked: q.IsAutoPlayBlocked(videoID)})
}

// PlayHistory returns played videos, most recent first. Only the last 20 are
// returned unless "fullHistory=true".
func (h *ClientHandler) PlayHistory(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue

	ids := q.GetAllPlayedVideoIDs()
	if r.URL.Query().Get("fullHistory") != "true" && len(ids) > defaultHistoryLimit {
		ids = ids[:defaultHistoryLimit]
	}

	writeJSON(w, http.StatusOK, enrichAll(r.Context(), h.videos, ids))
}

// SetCommand forwards a player command and changes room settings. All values
// are validated before any is applied.
func (h *ClientHandler) SetCommand(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue
	query := r.URL.Query()

	playerRaw := strings.ToUpper(query.Get("player"))
	autoPlayRaw := strings.ToUpper(query.Get("autoplay"))
	privacyRaw := strings.ToUpper(query.Get("privacy"))

	if playerRaw == "" && autoPlayRaw == "" && privacyRaw == "" {
		writeError(w, http.StatusBadRequest, "At least one command required")
		return
	}

	var (
		cmd     queue.PlayerCommand
		mode    queue.PrivacyMode
		enabled bool
		err     error
	)
	if playerRaw != "" {
		if cmd, err = queue.ParsePlayerCommand(playerRaw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid value for 'player'. Valid options are: PLAY, PAUSE, NEXTTRACK, REPLAYTRACK")
			return
		}
	}
	switch autoPlayRaw {
	case "":
	case "ENABLE":
		enabled = true
	case "DISABLE":
		enabled = false
	default:
		writeError(w, http.StatusBadRequest, "Invalid value for 'autoplay'. Valid options are: ENABLE, DISABLE")
		return
	}
	if privacyRaw != "" {
		if mode, err = queue.ParsePrivacyMode(privacyRaw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid value for 'privacy'. Valid options are: FULLNAME, USERAUTO, HIDDEN")
			return
		}
	}

	resp := models.SetCommandResponse{
		AutoPlayCommand: autoPlayRaw,
		PlayerCommand:   playerRaw,
		PrivacyCommand:  privacyRaw,
	}
	if autoPlayRaw != "" {
		if err := q.SetShouldAutoPlay(enabled); err != nil {
			writeAppError(r.Context(), w, err)
			return
		}
	}
	if privacyRaw != "" {
		if err := q.SetPrivacyMode(mode); err != nil {
			writeAppError(r.Context(), w, err)
			return
		}
	}
	if playerRaw != "" {
		delivered, err := q.SetPlayerCommand(cmd)
		if err != nil {
			writeAppError(r.Context(), w, err)
			return
		}
		resp.Delivered = &delivered
	}

	writeJSON(w, http.StatusOK, resp)
}

// AutoQueueState returns the ranked autoplay candidates with video details.
func (h *ClientHandler) AutoQueueState(w http.ResponseWriter, r *http.Request) {
	q := middleware.GetClient(r.Context()).Queue
	candidates := q.GetAutoPlayState()

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.VideoID
	}
	videos := enrichAll(r.Context(), h.videos, ids)

	out := make([]models.AutoQueueEntry, len(candidates))
	for i, c := range candidates {
		out[i] = models.AutoQueueEntry{
			NumberOfSongsUntilAvailableToPlay: c.Cooldown,
			Score:                             c.Score,
			Video:                             videos[i],
		}
	}
	writeJSON(w, http.StatusOK, out)
}
