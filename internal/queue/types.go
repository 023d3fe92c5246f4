package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ytpm/backend/internal/apperr"
)

// Influence controls whether playing an item feeds the autoplay recommender.
type Influence string

const (
	InfluenceUserAdded Influence = "USER_ADDED"
	InfluenceNone      Influence = "NO_INFLUENCE"
	InfluenceAutoAdded Influence = "AUTO_ADDED"
)

// QueueItem is one entry in a room's queue. An empty AddedBy means the item
// was queued automatically.
type QueueItem struct {
	VideoID   string    `json:"videoId"`
	AddedBy   string    `json:"-"`
	Influence Influence `json:"influence"`
}

// PlayerState is the playback device's reported state.
type PlayerState string

const (
	StateStopped PlayerState = "STOPPED"
	StatePlaying PlayerState = "PLAYING"
	StatePaused  PlayerState = "PAUSED"
)

// PlayerEvent is what the playback device reports through UpdatePlayerState.
type PlayerEvent string

const (
	EventPlaying PlayerEvent = "PLAYING"
	EventPaused  PlayerEvent = "PAUSED"
	EventStopped PlayerEvent = "STOPPED"
	EventEnded   PlayerEvent = "ENDED"
)

// ParsePlayerEvent parses a case-insensitive event name.
func ParsePlayerEvent(s string) (PlayerEvent, error) {
	e := PlayerEvent(strings.ToUpper(strings.TrimSpace(s)))
	switch e {
	case EventPlaying, EventPaused, EventStopped, EventEnded:
		return e, nil
	}
	return "", fmt.Errorf("unknown player event %q: %w", s, apperr.ErrInvalidArgument)
}

// state maps an event onto the playback state machine. Ended returns the
// device to Stopped; the next song is requested separately.
func (e PlayerEvent) state() (PlayerState, bool) {
	switch e {
	case EventPlaying:
		return StatePlaying, true
	case EventPaused:
		return StatePaused, true
	case EventStopped, EventEnded:
		return StateStopped, true
	}
	return "", false
}

// PlaybackState is the last state pushed by the room's playback device.
type PlaybackState struct {
	VideoID     string      `json:"videoId"`
	State       PlayerState `json:"playerState"`
	Position    float64     `json:"position"`
	Duration    float64     `json:"duration"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// PlaybackUpdate carries the fields of a device state push.
type PlaybackUpdate struct {
	VideoID  string
	Position float64
	Duration float64
}

// PrivacyMode controls how "added by" is shown to other collaborators.
type PrivacyMode string

const (
	PrivacyFullNames  PrivacyMode = "FULL_NAMES"
	PrivacyUserOrAuto PrivacyMode = "USER_OR_AUTO"
	PrivacyHidden     PrivacyMode = "HIDDEN"
)

// ParsePrivacyMode accepts the command values used by clients.
func ParsePrivacyMode(s string) (PrivacyMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FULLNAME", "FULLNAMES", "FULL_NAMES":
		return PrivacyFullNames, nil
	case "USERAUTO", "USER_OR_AUTO":
		return PrivacyUserOrAuto, nil
	case "HIDDEN":
		return PrivacyHidden, nil
	}
	return "", fmt.Errorf("unknown privacy mode %q: %w", s, apperr.ErrInvalidArgument)
}

// RenderAddedBy formats who queued item according to the room's privacy mode.
func RenderAddedBy(mode PrivacyMode, item QueueItem, nameFor func(token string) string) string {
	switch {
	case mode == PrivacyHidden:
		return ""
	case item.AddedBy == "":
		return "Added automatically"
	case mode == PrivacyFullNames && nameFor != nil:
		if name := nameFor(item.AddedBy); name != "" {
			return "Added by " + name
		}
	}
	return "Added by a user"
}

// PlayerCommand is an imperative instruction forwarded to the playback device.
type PlayerCommand string

const (
	CommandPlay        PlayerCommand = "PLAY"
	CommandPause       PlayerCommand = "PAUSE"
	CommandNextTrack   PlayerCommand = "NEXTTRACK"
	CommandReplayTrack PlayerCommand = "REPLAYTRACK"
)

// ParsePlayerCommand parses a case-insensitive command name.
func ParsePlayerCommand(s string) (PlayerCommand, error) {
	c := PlayerCommand(strings.ToUpper(strings.TrimSpace(s)))
	if c.valid() {
		return c, nil
	}
	return "", fmt.Errorf("unknown player command %q: %w", s, apperr.ErrInvalidArgument)
}

func (c PlayerCommand) valid() bool {
	switch c {
	case CommandPlay, CommandPause, CommandNextTrack, CommandReplayTrack:
		return true
	}
	return false
}

// DequeuePolicy decides who may remove an item from the queue.
type DequeuePolicy string

const (
	// DequeueAnyone lets any collaborator remove any item.
	DequeueAnyone DequeuePolicy = "anyone"
	// DequeueOwnerOnly restricts removal to the adder. Auto-queued items can
	// be removed by anyone.
	DequeueOwnerOnly DequeuePolicy = "owner"
)

// ParseDequeuePolicy parses a configured policy name.
func ParseDequeuePolicy(s string) (DequeuePolicy, error) {
	switch p := DequeuePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DequeueAnyone, DequeueOwnerOnly:
		return p, nil
	}
	return "", fmt.Errorf("unknown dequeue policy %q: %w", s, apperr.ErrInvalidArgument)
}

// AutoPlayCandidate is a ranked recommendation. Cooldown is the number of
// plays before the candidate can be selected again.
type AutoPlayCandidate struct {
	VideoID  string  `json:"videoId"`
	Score    float64 `json:"score"`
	Cooldown int     `json:"cooldown"`
}

// QueueState is the snapshot served to clients by the diff poll.
type QueueState struct {
	AutoPlayEnabled bool          `json:"autoPlayEnabled"`
	Queue           []QueueItem   `json:"queue"`
	LastUpdated     int64         `json:"lastUpdated"`
	Playback        PlaybackState `json:"playback"`
	PrivacyMode     PrivacyMode   `json:"privacyMode"`
}

// DeviceUpdate is delivered to the playback device's long poll.
type DeviceUpdate struct {
	QueueLength int
	Command     *PlayerCommand
	Added       []QueueItem
}

// RelatedVideoSource supplies recommendations for the autoplay pool.
type RelatedVideoSource interface {
	RelatedVideos(ctx context.Context, videoID string) ([]string, error)
}
