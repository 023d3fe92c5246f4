// Package handlers implements the HTTP API for player devices, collaborators
// and operators.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/logging"
	"github.com/ytpm/backend/internal/models"
	"github.com/ytpm/backend/internal/queue"
	"github.com/ytpm/backend/internal/videocache"
)

const enrichConcurrency = 8

// VideoLookup resolves video metadata, normally through the details cache.
type VideoLookup interface {
	GetFromCacheOrAPI(ctx context.Context, videoID string) (videocache.Metadata, error)
}

// NameResolver returns the display name bound to a collaborator token.
type NameResolver interface {
	NameFor(token string) string
}

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response without logging.
// For server errors with cause, use writeErrorWithCause.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response and logs the error with stack trace.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	// Don't log 401/403 - handled by security event logging
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return
	}

	if status >= 500 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)
	}
}

// writeAppError classifies err through the apperr taxonomy.
func writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	writeErrorWithCause(ctx, w, apperr.HTTPStatus(err), apperr.Message(err), err)
}

// enrich looks up display metadata for videoID. A failed lookup degrades to
// an ID-only video; it never fails the response.
func enrich(ctx context.Context, videos VideoLookup, videoID string) models.Video {
	m, err := videos.GetFromCacheOrAPI(ctx, videoID)
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "video details unavailable", slog.String("video_id", videoID), slog.Any("error", err))
		}
		return models.Video{VideoID: videoID}
	}
	return models.Video{
		VideoID:      m.VideoID,
		Title:        m.Title,
		ThumbnailURL: m.ThumbnailURL,
		ChannelName:  m.ChannelName,
	}
}

// enrichAll resolves ids concurrently and keeps their order.
func enrichAll(ctx context.Context, videos VideoLookup, ids []string) []models.Video {
	out := make([]models.Video, len(ids))
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			out[i] = enrich(ctx, videos, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// renderQueueState turns a snapshot into the collaborator view. With an empty
// queue and autoplay on, the next autoplay pick is listed as the only entry.
func renderQueueState(ctx context.Context, videos VideoLookup, names NameResolver, q *queue.PlayerQueue, state queue.QueueState) models.QueueStateResponse {
	items := state.Queue
	if len(items) == 0 && state.AutoPlayEnabled {
		if next, ok := q.GetNextAutoPlayItem(); ok {
			items = []queue.QueueItem{{VideoID: next, Influence: queue.InfluenceAutoAdded}}
		}
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}
	enriched := enrichAll(ctx, videos, ids)

	entries := make([]models.QueueEntry, len(items))
	for i, it := range items {
		entries[i] = models.QueueEntry{
			Video:   enriched[i],
			AddedBy: queue.RenderAddedBy(state.PrivacyMode, it, names.NameFor),
		}
	}

	return models.QueueStateResponse{
		AutoPlayEnabled: state.AutoPlayEnabled,
		Queue:           entries,
		LastUpdated:     state.LastUpdated,
		PlayerState:     string(state.Playback.State),
		PrivacyMode:     string(state.PrivacyMode),
	}
}

// pollContext bounds a long poll when timeout is positive.
func pollContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
