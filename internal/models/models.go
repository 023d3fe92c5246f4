// Package models holds the JSON request and response shapes of the HTTP API.
package models

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// Video is display metadata for a video. Only VideoID is guaranteed; the
// other fields are empty when the details lookup failed.
type Video struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	ChannelName  string `json:"channelName,omitempty"`
}

type SearchResponse struct {
	Videos        []Video `json:"videos"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Player device

type RegisterResponse struct {
	QueueKey    string `json:"queue_key"`
	QueueLength int    `json:"queue_length"`
	Token       string `json:"token"`
}

type AddedSong struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	AddedBy      string `json:"addedBy"`
}

// PollUpdate is delivered to the player device's long poll.
type PollUpdate struct {
	QueueLength int         `json:"queueLength"`
	Command     string      `json:"command,omitempty"`
	AddedSongs  []AddedSong `json:"addedSongs,omitempty"`
}

type NextSongResponse struct {
	AddedBy     string `json:"addedBy"`
	QueueLength int    `json:"queueLength"`
	Video       Video  `json:"video"`
}

// PlayerUpdateRequest is the device's state push. Time is in unix seconds.
type PlayerUpdateRequest struct {
	Event    string  `json:"event"`
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
	Position float64 `json:"position"`
	VideoID  string  `json:"videoId"`
}

type PlayerUpdateResponse struct {
	Applied bool `json:"applied"`
}

// Collaborator client

type ClientPollResponse struct {
	Duration    float64 `json:"duration"`
	PlayerState string  `json:"playerState"`
	Position    float64 `json:"position"`
	Video       *Video  `json:"video"`
}

type QueueEntry struct {
	Video
	AddedBy string `json:"addedBy,omitempty"`
}

type QueueStateResponse struct {
	AutoPlayEnabled bool         `json:"autoPlayEnabled"`
	Queue           []QueueEntry `json:"queue"`
	LastUpdated     int64        `json:"lastUpdated"`
	PlayerState     string       `json:"playerState,omitempty"`
	PrivacyMode     string       `json:"privacyMode,omitempty"`
}

// StreamMessage is one frame on the client WebSocket. Type is "state" or
// "closed"; State is set for "state" frames only.
type StreamMessage struct {
	Type  string              `json:"type"`
	State *QueueStateResponse `json:"state,omitempty"`
}

type EnqueueResponse struct {
	Video
	QueuePosition int `json:"queuePosition"`
}

type DequeueResponse struct {
	Video
	QueueLength int `json:"queueLength"`
}

type BlacklistResponse struct {
	VideoID string `json:"videoId"`
	Blocked bool   `json:"blocked"`
}

type SetCommandResponse struct {
	AutoPlayCommand string `json:"autoPlayCommand,omitempty"`
	PlayerCommand   string `json:"playerCommand,omitempty"`
	PrivacyCommand  string `json:"privacyCommand,omitempty"`
	// Delivered is set when a player command was sent; false means no device
	// was listening.
	Delivered *bool `json:"delivered,omitempty"`
}

type AutoQueueEntry struct {
	NumberOfSongsUntilAvailableToPlay int     `json:"numberOfSongsUntilAvailableToPlay"`
	Score                             float64 `json:"score"`
	Video                             Video   `json:"video"`
}

// Operator

type RoomSummary struct {
	Key         string    `json:"key"`
	LastTouched time.Time `json:"lastTouched"`
	IdleSeconds int64     `json:"idleSeconds"`
	QueueLength int       `json:"queueLength"`
}

type QueueStatesResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

type PublicConfigResponse struct {
	SentryDSN              string `json:"sentryDsn"`
	LongPollTimeoutSeconds int64  `json:"longPollTimeoutSeconds"`
	DequeuePolicy          string `json:"dequeuePolicy"`
	AutoPlayDefault        bool   `json:"autoPlayDefault"`
	SearchEnabled          bool   `json:"searchEnabled"`
}

type CleanQueuesResponse struct {
	Deleted   int `json:"deleted"`
	Remaining int `json:"remaining"`
}
