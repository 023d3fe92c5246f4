package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ytpm/backend/internal/models"
	"github.com/ytpm/backend/internal/services"
)

// Searcher is the subset of services.YouTubeService used for discovery.
type Searcher interface {
	Search(ctx context.Context, query, pageToken string) (services.SearchResult, error)
	Autocomplete(ctx context.Context, query string) ([]string, error)
}

// YouTubeHandler handles video search and query suggestions.
type YouTubeHandler struct {
	youtube Searcher
}

// NewYouTubeHandler creates a YouTubeHandler backed by the given searcher.
func NewYouTubeHandler(youtube Searcher) *YouTubeHandler {
	return &YouTubeHandler{youtube: youtube}
}

// Search handles video search queries. "page" continues a previous search.
func (h *YouTubeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	result, err := h.youtube.Search(r.Context(), query, r.URL.Query().Get("page"))
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	response := models.SearchResponse{
		Videos:        make([]models.Video, len(result.Videos)),
		NextPageToken: result.NextPageToken,
	}
	for i, v := range result.Videos {
		response.Videos[i] = models.Video{
			VideoID:      v.VideoID,
			Title:        v.Title,
			ThumbnailURL: v.ThumbnailURL,
			ChannelName:  v.ChannelName,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// Autocomplete returns query suggestions. An empty query returns recent
// searches.
func (h *YouTubeHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.youtube.Autocomplete(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}
