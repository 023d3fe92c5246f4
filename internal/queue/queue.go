// Package queue holds the per-room player queue, its autoplay recommender and
// the registry that creates and garbage-collects rooms.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/broker"
)

const relatedFetchTimeout = 10 * time.Second

// PlayerQueue is the state of one room: the ordered queue, what is playing,
// play history and autoplay settings. All access is serialized by mu, and
// notifications are published while mu is held so a waiter that checks state
// and subscribes under mu cannot miss a change.
type PlayerQueue struct {
	key         string
	playerToken string
	bus         *broker.Bus
	related     RelatedVideoSource
	policy      DequeuePolicy
	now         func() time.Time

	mu              sync.Mutex
	items           []QueueItem
	nowPlaying      *QueueItem
	history         []string
	playback        PlaybackState
	autoPlayEnabled bool
	privacy         PrivacyMode
	auto            *autoPlay
	pendingAdded    []QueueItem
	deviceClock     time.Time
	version         int64
	lastTouched     time.Time
	closed          bool
}

func newPlayerQueue(key, playerToken string, bus *broker.Bus, opts ManagerOptions) *PlayerQueue {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	policy := opts.DequeuePolicy
	if policy == "" {
		policy = DequeueAnyone
	}
	return &PlayerQueue{
		key:             key,
		playerToken:     playerToken,
		bus:             bus,
		related:         opts.RelatedSource,
		policy:          policy,
		now:             now,
		playback:        PlaybackState{State: StateStopped},
		autoPlayEnabled: opts.AutoPlayDefault,
		privacy:         PrivacyUserOrAuto,
		auto:            newAutoPlay(opts.AutoPlayCooldown),
		lastTouched:     now(),
	}
}

// Key is the shareable room key.
func (q *PlayerQueue) Key() string { return q.key }

// PlayerToken is the device-private token of the room's playback device.
func (q *PlayerQueue) PlayerToken() string { return q.playerToken }

// LastTouched returns when the room was last accessed.
func (q *PlayerQueue) LastTouched() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastTouched
}

// Version is incremented on every state change.
func (q *PlayerQueue) Version() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.version
}

// Touch marks the room as in use.
func (q *PlayerQueue) Touch() {
	q.mu.Lock()
	q.lastTouched = q.now()
	q.mu.Unlock()
}

// Enqueue appends item to the tail and returns its 1-based position, which is
// the new length.
func (q *PlayerQueue) Enqueue(item QueueItem) (int, error) {
	return q.insert(item, false)
}

// AddToFront inserts item at the head so it plays next and returns its 1-based
// position, always 1. The currently playing item is not affected.
func (q *PlayerQueue) AddToFront(item QueueItem) (int, error) {
	return q.insert(item, true)
}

func (q *PlayerQueue) insert(item QueueItem, front bool) (int, error) {
	if item.VideoID == "" {
		return 0, fmt.Errorf("video id is required: %w", apperr.ErrInvalidArgument)
	}
	if item.Influence == "" {
		item.Influence = InfluenceUserAdded
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return 0, apperr.ErrRoomClosed
	}

	if front {
		q.items = append([]QueueItem{item}, q.items...)
	} else {
		q.items = append(q.items, item)
	}
	q.pendingAdded = append(q.pendingAdded, item)
	q.changed()
	q.notifyDevice(nil)
	if front {
		return 1, nil
	}
	return len(q.items), nil
}

// FindPosition returns the index of the first queued copy of videoID, or -1.
func (q *PlayerQueue) FindPosition(videoID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return q.findLocked(videoID, "")
}

// findLocked prefers a copy added by preferAdder when one exists.
func (q *PlayerQueue) findLocked(videoID, preferAdder string) int {
	first := -1
	for i, it := range q.items {
		if it.VideoID != videoID {
			continue
		}
		if preferAdder != "" && it.AddedBy == preferAdder {
			return i
		}
		if first == -1 {
			first = i
		}
	}
	return first
}

// Dequeue removes the item at position on behalf of caller.
func (q *PlayerQueue) Dequeue(position int, caller string) (QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return QueueItem{}, apperr.ErrRoomClosed
	}
	if position < 0 || position >= len(q.items) {
		return QueueItem{}, fmt.Errorf("position %d out of range: %w", position, apperr.ErrNotFound)
	}
	return q.removeLocked(position, caller)
}

// DequeueAt removes the item at position only if it is still videoID. A
// position computed from an earlier read fails instead of removing whatever
// has moved into its place.
func (q *PlayerQueue) DequeueAt(position int, videoID, caller string) (QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return QueueItem{}, apperr.ErrRoomClosed
	}
	if position < 0 || position >= len(q.items) || q.items[position].VideoID != videoID {
		return QueueItem{}, apperr.StalePosition(position, videoID)
	}
	return q.removeLocked(position, caller)
}

// DequeueVideo finds and removes videoID in a single critical section. When
// the video is queued more than once, the caller's own copy is removed first.
func (q *PlayerQueue) DequeueVideo(videoID, caller string) (QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return QueueItem{}, apperr.ErrRoomClosed
	}
	pos := q.findLocked(videoID, caller)
	if pos == -1 {
		return QueueItem{}, fmt.Errorf("item not in queue: %s: %w", videoID, apperr.ErrNotFound)
	}
	return q.removeLocked(pos, caller)
}

// dropPendingLocked forgets one undelivered "added" notice for item once it
// has left the queue.
func (q *PlayerQueue) dropPendingLocked(item QueueItem) {
	for i, p := range q.pendingAdded {
		if p == item {
			q.pendingAdded = append(q.pendingAdded[:i:i], q.pendingAdded[i+1:]...)
			return
		}
	}
}

func (q *PlayerQueue) removeLocked(pos int, caller string) (QueueItem, error) {
	item := q.items[pos]
	if q.policy == DequeueOwnerOnly && item.AddedBy != "" && item.AddedBy != caller {
		return QueueItem{}, fmt.Errorf("only the user who added %s may remove it: %w", item.VideoID, apperr.ErrUnauthorized)
	}

	q.items = append(q.items[:pos:pos], q.items[pos+1:]...)
	q.dropPendingLocked(item)
	q.changed()
	q.notifyDevice(nil)
	return item, nil
}

// GetSongToPlay advances the room. The previous now-playing video moves to
// history, then the head of the queue is popped. With an empty queue and
// autoplay enabled the best eligible recommendation is returned as an
// auto-added item. The boolean is false when there is nothing to play.
func (q *PlayerQueue) GetSongToPlay() (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return QueueItem{}, false
	}

	changed := false
	// Advancing always retires the current video, even with nothing to play
	// next. The enqueue, play, advance round trip must end with the finished
	// video in history and an empty queue.
	if q.nowPlaying != nil {
		q.history = append(q.history, q.nowPlaying.VideoID)
		q.nowPlaying = nil
		changed = true
	}

	var next QueueItem
	found := false
	popped := false
	if len(q.items) > 0 {
		next = q.items[0]
		q.items = q.items[1:]
		q.dropPendingLocked(next)
		found = true
		popped = true
	} else if q.autoPlayEnabled {
		if c, ok := q.auto.best(); ok {
			next = QueueItem{VideoID: c.videoID, Influence: InfluenceAutoAdded}
			found = true
		}
	}

	if found {
		q.auto.played(next.VideoID)
		q.nowPlaying = &next
		changed = true
		if next.Influence == InfluenceUserAdded && q.related != nil {
			go q.refreshRelated(next.VideoID)
		}
	}
	if changed {
		q.changed()
	}
	if popped {
		q.notifyDevice(nil)
	}
	return next, found
}

func (q *PlayerQueue) refreshRelated(videoID string) {
	ctx, cancel := context.WithTimeout(context.Background(), relatedFetchTimeout)
	defer cancel()

	ids, err := q.related.RelatedVideos(ctx, videoID)
	if err != nil {
		slog.Warn("related video refresh failed", slog.String("room_key", q.key), slog.String("video_id", videoID), slog.Any("error", err))
		return
	}
	q.AddRelatedVideos(videoID, ids)
}

// AddRelatedVideos feeds the autoplay pool with recommendations for a video
// that was played by user request.
func (q *PlayerQueue) AddRelatedVideos(sourceVideoID string, related []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(related) == 0 {
		return
	}
	q.auto.feed(sourceVideoID, related)
	q.changed()
}

// UpdatePlayerState applies a state push from the playback device. Updates
// are ordered by the device's own clock: one stamped earlier than the newest
// stamped update is dropped and reported as false. A zero eventTime marks an
// unstamped update, which is always applied, recorded at server time and
// never moves the device clock forward.
func (q *PlayerQueue) UpdatePlayerState(event PlayerEvent, eventTime time.Time, u PlaybackUpdate) (bool, error) {
	state, ok := event.state()
	if !ok {
		return false, fmt.Errorf("unknown player event %q: %w", event, apperr.ErrInvalidArgument)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return false, apperr.ErrRoomClosed
	}
	lastUpdated := eventTime
	if eventTime.IsZero() {
		lastUpdated = q.now()
	} else {
		if eventTime.Before(q.deviceClock) {
			return false, nil
		}
		q.deviceClock = eventTime
	}

	videoID := u.VideoID
	if videoID == "" {
		videoID = q.playback.VideoID
	}
	q.playback = PlaybackState{
		VideoID:     videoID,
		State:       state,
		Position:    u.Position,
		Duration:    u.Duration,
		LastUpdated: lastUpdated,
	}
	q.changed()
	return true, nil
}

// GetPlayerState returns the last applied playback state.
func (q *PlayerQueue) GetPlayerState() PlaybackState {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return q.playback
}

// GetQueueState returns a full snapshot for clients.
func (q *PlayerQueue) GetQueueState() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return q.snapshotLocked()
}

func (q *PlayerQueue) snapshotLocked() QueueState {
	items := make([]QueueItem, len(q.items))
	copy(items, q.items)
	return QueueState{
		AutoPlayEnabled: q.autoPlayEnabled,
		Queue:           items,
		LastUpdated:     q.version,
		Playback:        q.playback,
		PrivacyMode:     q.privacy,
	}
}

// GetAllQueuedItems returns a copy of the queue in play order.
func (q *PlayerQueue) GetAllQueuedItems() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	items := make([]QueueItem, len(q.items))
	copy(items, q.items)
	return items
}

// GetAllPlayedVideoIDs returns the play history, most recent first.
func (q *PlayerQueue) GetAllPlayedVideoIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	out := make([]string, len(q.history))
	for i, id := range q.history {
		out[len(q.history)-1-i] = id
	}
	return out
}

// NowPlaying returns the item most recently handed out by GetSongToPlay.
func (q *PlayerQueue) NowPlaying() (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.nowPlaying == nil {
		return QueueItem{}, false
	}
	return *q.nowPlaying, true
}

// Length returns the number of queued items.
func (q *PlayerQueue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return len(q.items)
}

func (q *PlayerQueue) SetShouldAutoPlay(enabled bool) error {
	return q.update(func() { q.autoPlayEnabled = enabled })
}

func (q *PlayerQueue) GetShouldAutoPlay() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return q.autoPlayEnabled
}

func (q *PlayerQueue) SetPrivacyMode(mode PrivacyMode) error {
	switch mode {
	case PrivacyFullNames, PrivacyUserOrAuto, PrivacyHidden:
	default:
		return fmt.Errorf("unknown privacy mode %q: %w", mode, apperr.ErrInvalidArgument)
	}
	return q.update(func() { q.privacy = mode })
}

func (q *PlayerQueue) GetPrivacyMode() PrivacyMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return q.privacy
}

// PreventAutoPlay blacklists videoID from autoplay selection.
func (q *PlayerQueue) PreventAutoPlay(videoID string) error {
	return q.update(func() { q.auto.blacklist[videoID] = struct{}{} })
}

// AllowAutoPlay removes videoID from the blacklist. It becomes eligible again
// once its cooldown has run out.
func (q *PlayerQueue) AllowAutoPlay(videoID string) error {
	return q.update(func() { delete(q.auto.blacklist, videoID) })
}

func (q *PlayerQueue) IsAutoPlayBlocked(videoID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.auto.blocked(videoID)
}

func (q *PlayerQueue) update(fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return apperr.ErrRoomClosed
	}
	fn()
	q.changed()
	return nil
}

// SetPlayerCommand forwards cmd to the playback device. Delivery is best
// effort and at most once: if no device is polling, the command is dropped
// and false is returned. Playback state is only changed by the device's
// subsequent UpdatePlayerState.
func (q *PlayerQueue) SetPlayerCommand(cmd PlayerCommand) (bool, error) {
	if !cmd.valid() {
		return false, fmt.Errorf("unknown player command %q: %w", cmd, apperr.ErrInvalidArgument)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	if q.closed {
		return false, apperr.ErrRoomClosed
	}
	return q.notifyDevice(&cmd), nil
}

// GetAutoPlayState returns the ranked recommendation pool without
// blacklisted videos.
func (q *PlayerQueue) GetAutoPlayState() []AutoPlayCandidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	return q.auto.state()
}

// GetNextAutoPlayItem previews what autoplay would pick next without
// changing any cooldowns or history.
func (q *PlayerQueue) GetNextAutoPlayItem() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTouched = q.now()
	c, ok := q.auto.best()
	if !ok {
		return "", false
	}
	return c.videoID, true
}

// WaitForChange blocks until the room's version is greater than since, the
// room is closed, or ctx is done.
func (q *PlayerQueue) WaitForChange(ctx context.Context, since int64) (QueueState, error) {
	topic := broker.ClientTopic(q.key)

	q.mu.Lock()
	q.lastTouched = q.now()
	if q.closed {
		q.mu.Unlock()
		return QueueState{}, apperr.ErrRoomClosed
	}
	if q.version > since {
		s := q.snapshotLocked()
		q.mu.Unlock()
		return s, nil
	}
	ch, sub := q.bus.Register(topic)
	q.mu.Unlock()

	payload, err := q.bus.Await(ctx, topic, sub, ch)
	if err != nil {
		return QueueState{}, err
	}
	return payload.(QueueState), nil
}

// WaitForDeviceUpdate is the playback device's long poll. Songs added since
// the device last heard from the room are returned immediately.
func (q *PlayerQueue) WaitForDeviceUpdate(ctx context.Context) (DeviceUpdate, error) {
	topic := broker.DeviceTopic(q.key)

	q.mu.Lock()
	q.lastTouched = q.now()
	if q.closed {
		q.mu.Unlock()
		return DeviceUpdate{}, apperr.ErrRoomClosed
	}
	if len(q.pendingAdded) > 0 {
		u := DeviceUpdate{QueueLength: len(q.items), Added: q.pendingAdded}
		q.pendingAdded = nil
		q.mu.Unlock()
		return u, nil
	}
	ch, sub := q.bus.Register(topic)
	q.mu.Unlock()

	payload, err := q.bus.Await(ctx, topic, sub, ch)
	if err != nil {
		return DeviceUpdate{}, err
	}
	return payload.(DeviceUpdate), nil
}

// changed bumps the version and publishes the new snapshot to waiting
// clients. Callers hold mu.
func (q *PlayerQueue) changed() {
	q.version++
	q.bus.Publish(broker.ClientTopic(q.key), q.snapshotLocked())
}

// notifyDevice publishes to the device topic and reports whether a device
// received it. Pending added songs are cleared only once delivered.
func (q *PlayerQueue) notifyDevice(cmd *PlayerCommand) bool {
	u := DeviceUpdate{QueueLength: len(q.items), Command: cmd}
	if len(q.pendingAdded) > 0 {
		u.Added = make([]QueueItem, len(q.pendingAdded))
		copy(u.Added, q.pendingAdded)
	}
	if q.bus.Publish(broker.DeviceTopic(q.key), u) == 0 {
		return false
	}
	q.pendingAdded = nil
	return true
}

// retireIfIdle closes the room when it has not been touched within idle and
// rejects every outstanding waiter. Holding mu guarantees no operation on the
// room is in progress.
func (q *PlayerQueue) retireIfIdle(now time.Time, idle time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return true
	}
	if now.Sub(q.lastTouched) <= idle {
		return false
	}
	q.closed = true
	q.bus.Publish(broker.DeviceTopic(q.key), apperr.ErrRoomClosed)
	q.bus.Publish(broker.ClientTopic(q.key), apperr.ErrRoomClosed)
	return true
}

// Summary is the operational view of a room.
type Summary struct {
	Key         string    `json:"key"`
	LastTouched time.Time `json:"lastTouched"`
	Length      int       `json:"length"`
}

func (q *PlayerQueue) summary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Summary{Key: q.key, LastTouched: q.lastTouched, Length: len(q.items)}
}
