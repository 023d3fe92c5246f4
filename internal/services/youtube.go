package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/videocache"
)

const (
	DefaultYouTubeAPIURL = "https://www.googleapis.com/youtube/v3"
	defaultSuggestURL    = "https://suggestqueries.google.com/complete/search"

	musicTopicID       = "/m/04rlf"
	searchResultLimit  = 30
	relatedResultLimit = 10
	maxSearchHistory   = 1000
)

// CacheWriter receives metadata seen in API responses.
type CacheWriter interface {
	AddOrReplaceInCache(ctx context.Context, m videocache.Metadata)
}

// YouTubeService provides access to the YouTube Data API v3 and the search
// suggestion endpoint.
type YouTubeService struct {
	apiKey     string
	baseURL    string
	suggestURL string
	regionCode string
	httpClient *http.Client
	cache      CacheWriter

	historyMu sync.Mutex
	history   map[string]int
}

// SearchResult is one page of search results.
type SearchResult struct {
	Videos        []videocache.Metadata `json:"videos"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type youtubeSearchResponse struct {
	NextPageToken string              `json:"nextPageToken"`
	Items         []youtubeSearchItem `json:"items"`
}

type youtubeSearchItem struct {
	ID      youtubeVideoID `json:"id"`
	Snippet youtubeSnippet `json:"snippet"`
}

type youtubeVideoID struct {
	VideoID string `json:"videoId"`
}

type youtubeSnippet struct {
	Title        string            `json:"title"`
	ChannelTitle string            `json:"channelTitle"`
	Thumbnails   youtubeThumbnails `json:"thumbnails"`
}

type youtubeThumbnails struct {
	Default youtubeThumbnail `json:"default"`
	Medium  youtubeThumbnail `json:"medium"`
}

type youtubeThumbnail struct {
	URL string `json:"url"`
}

type youtubeVideosResponse struct {
	Items []youtubeVideoItem `json:"items"`
}

type youtubeVideoItem struct {
	ID      string         `json:"id"`
	Snippet youtubeSnippet `json:"snippet"`
}

// NewYouTubeService creates a YouTubeService. An empty baseURL uses the public
// API endpoint.
func NewYouTubeService(apiKey, baseURL, regionCode string) *YouTubeService {
	if baseURL == "" {
		baseURL = DefaultYouTubeAPIURL
	}
	return &YouTubeService{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		suggestURL: defaultSuggestURL,
		regionCode: regionCode,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		history: make(map[string]int),
	}
}

// SetCache makes search and related results pre-warm c.
func (s *YouTubeService) SetCache(c CacheWriter) {
	s.cache = c
}

// Search queries YouTube for music videos matching query. pageToken selects a
// later page from a previous SearchResult.
func (s *YouTubeService) Search(ctx context.Context, query, pageToken string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, fmt.Errorf("no search query provided: %w", apperr.ErrInvalidArgument)
	}
	s.addToHistory(query)

	params := s.searchParams(searchResultLimit)
	params.Set("q", query)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp youtubeSearchResponse
	if err := s.getJSON(ctx, s.baseURL+"/search", params, &resp); err != nil {
		return SearchResult{}, fmt.Errorf("search: %w", err)
	}

	videos := s.collect(ctx, resp.Items)
	return SearchResult{Videos: videos, NextPageToken: resp.NextPageToken}, nil
}

// FetchVideo looks up a single video through videos.list.
func (s *YouTubeService) FetchVideo(ctx context.Context, videoID string) (videocache.Metadata, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", videoID)
	params.Set("key", s.apiKey)

	var resp youtubeVideosResponse
	if err := s.getJSON(ctx, s.baseURL+"/videos", params, &resp); err != nil {
		return videocache.Metadata{}, fmt.Errorf("video details %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return videocache.Metadata{}, fmt.Errorf("video with ID '%s' not found: %w", videoID, apperr.ErrNotFound)
	}

	item := resp.Items[0]
	return toMetadata(item.ID, item.Snippet), nil
}

// RelatedVideos returns the IDs of videos related to videoID, best match
// first.
func (s *YouTubeService) RelatedVideos(ctx context.Context, videoID string) ([]string, error) {
	params := s.searchParams(relatedResultLimit)
	params.Set("relatedToVideoId", videoID)

	var resp youtubeSearchResponse
	if err := s.getJSON(ctx, s.baseURL+"/search", params, &resp); err != nil {
		return nil, fmt.Errorf("related videos %s: %w", videoID, err)
	}

	videos := s.collect(ctx, resp.Items)
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}
	return ids, nil
}

// Autocomplete returns search suggestions for query. With an empty query the
// server's own search history is returned, most frequent first.
func (s *YouTubeService) Autocomplete(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.searchHistory(), nil
	}

	params := url.Values{}
	params.Set("ds", "yt")
	params.Set("client", "firefox")
	params.Set("q", query)

	// The response is [query, [suggestion...], ...].
	var resp []json.RawMessage
	if err := s.getJSON(ctx, s.suggestURL, params, &resp); err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	if len(resp) < 2 {
		return []string{}, nil
	}
	var suggestions []string
	if err := json.Unmarshal(resp[1], &suggestions); err != nil {
		return nil, fmt.Errorf("autocomplete: decode suggestions: %w: %w", apperr.ErrUpstreamUnavailable, err)
	}
	return suggestions, nil
}

func (s *YouTubeService) searchParams(limit int) url.Values {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("topicId", musicTopicID)
	params.Set("maxResults", fmt.Sprint(limit))
	params.Set("key", s.apiKey)
	if s.regionCode != "" {
		params.Set("regionCode", s.regionCode)
	}
	return params
}

// collect converts search items to metadata and pre-warms the cache.
func (s *YouTubeService) collect(ctx context.Context, items []youtubeSearchItem) []videocache.Metadata {
	videos := make([]videocache.Metadata, 0, len(items))
	for _, item := range items {
		if item.ID.VideoID == "" {
			continue
		}
		m := toMetadata(item.ID.VideoID, item.Snippet)
		videos = append(videos, m)
		if s.cache != nil {
			s.cache.AddOrReplaceInCache(ctx, m)
		}
	}
	return videos
}

func toMetadata(videoID string, snippet youtubeSnippet) videocache.Metadata {
	thumbnailURL := snippet.Thumbnails.Default.URL
	if thumbnailURL == "" {
		thumbnailURL = snippet.Thumbnails.Medium.URL
	}
	return videocache.Metadata{
		VideoID:      videoID,
		Title:        html.UnescapeString(snippet.Title),
		ThumbnailURL: thumbnailURL,
		ChannelName:  html.UnescapeString(snippet.ChannelTitle),
	}
}

// getJSON performs a GET and decodes the body into out. Transport failures
// and non-200 responses are reported as apperr.ErrUpstreamUnavailable.
func (s *YouTubeService) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Warn("youtube request failed",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("status %d: %w", resp.StatusCode, apperr.ErrUpstreamUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w: %w", apperr.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (s *YouTubeService) addToHistory(query string) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if _, ok := s.history[query]; !ok && len(s.history) >= maxSearchHistory {
		return
	}
	s.history[query]++
}

func (s *YouTubeService) searchHistory() []string {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := make([]string, 0, len(s.history))
	for q := range s.history {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.history[out[i]] != s.history[out[j]] {
			return s.history[out[i]] > s.history[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)

// VideoIDFromURL extracts the video ID from a YouTube watch, short or embed
// URL.
func VideoIDFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid video URL: %s: %w", raw, apperr.ErrInvalidArgument)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.Trim(u.Path, "/")

	var id string
	switch host {
	case "youtu.be":
		id = path
	case "youtube.com", "music.youtube.com":
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "v/"):
			id = path[strings.Index(path, "/")+1:]
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id in URL: %s: %w", raw, apperr.ErrInvalidArgument)
	}
	return id, nil
}
