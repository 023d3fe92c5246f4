package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytpm/backend/internal/apperr"
	"github.com/ytpm/backend/internal/broker"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubRelated struct {
	calls   atomic.Int32
	related map[string][]string
}

func (s *stubRelated) RelatedVideos(_ context.Context, videoID string) ([]string, error) {
	s.calls.Add(1)
	ids, ok := s.related[videoID]
	if !ok {
		return nil, errors.New("no related videos")
	}
	return ids, nil
}

func newTestQueue(t *testing.T, opts ManagerOptions) (*PlayerQueue, *broker.Bus) {
	t.Helper()
	bus := broker.New()
	m := NewManager(bus, opts)
	q, err := m.CreateNewPlayerQueue()
	require.NoError(t, err)
	return q, bus
}

func userItem(videoID, token string) QueueItem {
	return QueueItem{VideoID: videoID, AddedBy: token, Influence: InfluenceUserAdded}
}

func waitForListeners(t *testing.T, bus *broker.Bus, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Listeners(topic) == n }, time.Second, time.Millisecond)
}

func TestEndToEndPlayback(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})

	n, err := q.Enqueue(QueueItem{VideoID: "abc", AddedBy: "user-1", Influence: InfluenceUserAdded})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, q.Length())

	item, ok := q.GetSongToPlay()
	require.True(t, ok)
	assert.Equal(t, "abc", item.VideoID)
	assert.Equal(t, 0, q.Length())
	assert.Empty(t, q.GetAllPlayedVideoIDs())

	_, ok = q.GetSongToPlay()
	assert.False(t, ok)
	assert.Equal(t, []string{"abc"}, q.GetAllPlayedVideoIDs())
}

func TestGetSongToPlay_EmptyWithoutAutoPlay(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: false})
	q.AddRelatedVideos("seed", []string{"r1"})
	before := q.Version()

	_, ok := q.GetSongToPlay()

	assert.False(t, ok)
	assert.Empty(t, q.GetAllPlayedVideoIDs())
	assert.Equal(t, before, q.Version())
}

func TestGetSongToPlay_AutoPlayCandidate(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true, AutoPlayCooldown: 5})
	q.AddRelatedVideos("seed", []string{"r1", "r2"})

	_, err := q.Enqueue(QueueItem{VideoID: "first", Influence: InfluenceNone, AddedBy: "u"})
	require.NoError(t, err)
	_, ok := q.GetSongToPlay()
	require.True(t, ok)

	item, ok := q.GetSongToPlay()
	require.True(t, ok)
	assert.Equal(t, "r1", item.VideoID)
	assert.Equal(t, InfluenceAutoAdded, item.Influence)
	assert.Empty(t, item.AddedBy)
	assert.Equal(t, []string{"first"}, q.GetAllPlayedVideoIDs())

	state := q.GetAutoPlayState()
	require.Len(t, state, 2)
	for _, c := range state {
		if c.VideoID == "r1" {
			assert.Equal(t, 5, c.Cooldown)
		}
	}
}

func TestAutoPlayCooldownRotation(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true, AutoPlayCooldown: 1})
	q.AddRelatedVideos("seed", []string{"r1", "r2"})

	var played []string
	for i := 0; i < 4; i++ {
		item, ok := q.GetSongToPlay()
		require.True(t, ok)
		played = append(played, item.VideoID)
	}

	assert.Equal(t, []string{"r1", "r2", "r1", "r2"}, played)
}

func TestAutoPlayBlacklist(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true})
	q.AddRelatedVideos("seed", []string{"r1", "r2"})

	require.NoError(t, q.PreventAutoPlay("r1"))
	assert.True(t, q.IsAutoPlayBlocked("r1"))
	for _, c := range q.GetAutoPlayState() {
		assert.NotEqual(t, "r1", c.VideoID)
	}
	next, ok := q.GetNextAutoPlayItem()
	require.True(t, ok)
	assert.Equal(t, "r2", next)

	require.NoError(t, q.AllowAutoPlay("r1"))
	ids := make([]string, 0)
	for _, c := range q.GetAutoPlayState() {
		ids = append(ids, c.VideoID)
	}
	assert.Equal(t, []string{"r1", "r2"}, ids)
}

func TestGetNextAutoPlayItemIsReadOnly(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true})
	q.AddRelatedVideos("seed", []string{"r1", "r2"})
	stateBefore := q.GetAutoPlayState()
	versionBefore := q.Version()

	for i := 0; i < 3; i++ {
		next, ok := q.GetNextAutoPlayItem()
		require.True(t, ok)
		assert.Equal(t, "r1", next)
	}

	assert.Equal(t, stateBefore, q.GetAutoPlayState())
	assert.Equal(t, versionBefore, q.Version())
	assert.Empty(t, q.GetAllPlayedVideoIDs())
}

func TestAutoPlayRankingTiesKeepInsertionOrder(t *testing.T) {
	a := newAutoPlay(1)
	a.feed("seed", []string{"a", "b", "c"})
	a.index["c"].score = a.index["a"].score
	a.index["b"].score = a.index["a"].score

	var ids []string
	for _, c := range a.state() {
		ids = append(ids, c.VideoID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestAutoPlayFeedDecaysAndSkipsSource(t *testing.T) {
	a := newAutoPlay(1)
	a.feed("seed", []string{"seed", "x"})
	require.NotContains(t, a.index, "seed")
	assert.InDelta(t, 0.5, a.index["x"].score, 1e-9)

	a.feed("other", []string{"y"})
	assert.InDelta(t, 0.4, a.index["x"].score, 1e-9)
	assert.InDelta(t, 1.0, a.index["y"].score, 1e-9)

	best, ok := a.best()
	require.True(t, ok)
	assert.Equal(t, "y", best.videoID)
}

func TestAutoPlayPoolIsBounded(t *testing.T) {
	a := newAutoPlay(1)
	for i := 0; i < 3; i++ {
		ids := make([]string, 60)
		for j := range ids {
			ids[j] = fmt.Sprintf("v%d-%d", i, j)
		}
		a.feed(fmt.Sprintf("seed%d", i), ids)
	}
	assert.Len(t, a.candidates, maxCandidates)
	assert.Len(t, a.index, maxCandidates)
}

func TestUserAddedPlayRefreshesRecommendations(t *testing.T) {
	src := &stubRelated{related: map[string][]string{"abc": {"rel1", "rel2"}}}
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true, RelatedSource: src})

	_, err := q.Enqueue(userItem("abc", "u1"))
	require.NoError(t, err)
	_, ok := q.GetSongToPlay()
	require.True(t, ok)

	require.Eventually(t, func() bool { return len(q.GetAutoPlayState()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestNonInfluencingPlaysDoNotFeedRecommender(t *testing.T) {
	src := &stubRelated{related: map[string][]string{"abc": {"rel1"}, "r1": {"rel2"}}}
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true, RelatedSource: src})
	q.AddRelatedVideos("seed", []string{"r1"})

	_, err := q.Enqueue(QueueItem{VideoID: "abc", AddedBy: "u1", Influence: InfluenceNone})
	require.NoError(t, err)
	_, ok := q.GetSongToPlay()
	require.True(t, ok)
	item, ok := q.GetSongToPlay()
	require.True(t, ok)
	require.Equal(t, InfluenceAutoAdded, item.Influence)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestAddToFront(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("a", "u1"))
	_, _ = q.Enqueue(userItem("b", "u1"))

	n, err := q.AddToFront(userItem("urgent", "u2"))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "AddToFront reports the head position")

	n, err = q.Enqueue(userItem("last", "u2"))
	require.NoError(t, err)
	assert.Equal(t, 4, n, "Enqueue reports the tail position")

	var ids []string
	for _, it := range q.GetAllQueuedItems() {
		ids = append(ids, it.VideoID)
	}
	assert.Equal(t, []string{"urgent", "a", "b", "last"}, ids)
}

func TestEnqueueRequiresVideoID(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	_, err := q.Enqueue(QueueItem{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestDequeue(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("a", "u1"))
	_, _ = q.Enqueue(userItem("b", "u2"))

	_, err := q.Dequeue(5, "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	item, err := q.Dequeue(0, "u2")
	require.NoError(t, err)
	assert.Equal(t, "a", item.VideoID)
	assert.Equal(t, 1, q.Length())
	assert.Equal(t, -1, q.FindPosition("a"))
	assert.Equal(t, 0, q.FindPosition("b"))
}

func TestDequeueAtRejectsStalePosition(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("a", "u1"))
	_, _ = q.Enqueue(userItem("b", "u1"))

	pos := q.FindPosition("b")
	_, err := q.Dequeue(0, "u1")
	require.NoError(t, err)

	_, err = q.DequeueAt(pos, "b", "u1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, q.Length())

	item, err := q.DequeueAt(0, "b", "u1")
	require.NoError(t, err)
	assert.Equal(t, "b", item.VideoID)
}

func TestDequeueVideoPrefersCallersCopy(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("dup", "u1"))
	_, _ = q.Enqueue(userItem("dup", "u2"))

	item, err := q.DequeueVideo("dup", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", item.AddedBy)

	remaining := q.GetAllQueuedItems()
	require.Len(t, remaining, 1)
	assert.Equal(t, "u1", remaining[0].AddedBy)

	_, err = q.DequeueVideo("missing", "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDequeuePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  DequeuePolicy
		item    QueueItem
		caller  string
		wantErr error
	}{
		{"anyone removes other's item", DequeueAnyone, userItem("a", "owner"), "other", nil},
		{"owner removes own item", DequeueOwnerOnly, userItem("a", "owner"), "owner", nil},
		{"owner-only rejects other", DequeueOwnerOnly, userItem("a", "owner"), "other", apperr.ErrUnauthorized},
		{"owner-only allows auto items", DequeueOwnerOnly, QueueItem{VideoID: "a", Influence: InfluenceAutoAdded}, "other", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := newTestQueue(t, ManagerOptions{DequeuePolicy: tt.policy})
			_, err := q.Enqueue(tt.item)
			require.NoError(t, err)

			_, err = q.DequeueVideo("a", tt.caller)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 1, q.Length())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, q.Length())
		})
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	const n = 100

	var wg sync.WaitGroup
	var removed atomic.Int32
	for i := 0; i < n; i++ {
		i := i
		id := fmt.Sprintf("v%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = q.AddToFront(userItem(id, "u"))
			} else {
				_, _ = q.Enqueue(userItem(id, "u"))
			}
		}()
		go func() {
			defer wg.Done()
			if item, err := q.DequeueVideo(id, "u"); err == nil {
				removed.Add(1)
				assert.Equal(t, id, item.VideoID)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n-int(removed.Load()), q.Length())
	seen := map[string]bool{}
	for _, it := range q.GetAllQueuedItems() {
		assert.False(t, seen[it.VideoID], "duplicate %s", it.VideoID)
		seen[it.VideoID] = true
	}
}

func TestUpdatePlayerState(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	t0 := time.Unix(1700000000, 0)

	initial := q.GetPlayerState()
	assert.Equal(t, StateStopped, initial.State)
	assert.Empty(t, initial.VideoID)

	applied, err := q.UpdatePlayerState(EventPlaying, t0, PlaybackUpdate{VideoID: "abc", Position: 1, Duration: 200})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = q.UpdatePlayerState(EventPaused, t0.Add(-time.Second), PlaybackUpdate{VideoID: "abc", Position: 0})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, StatePlaying, q.GetPlayerState().State)

	applied, err = q.UpdatePlayerState(EventPaused, t0.Add(time.Second), PlaybackUpdate{Position: 2, Duration: 200})
	require.NoError(t, err)
	require.True(t, applied)
	s := q.GetPlayerState()
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, "abc", s.VideoID)
	assert.Equal(t, 2.0, s.Position)

	_, err = q.UpdatePlayerState(EventEnded, t0.Add(2*time.Second), PlaybackUpdate{VideoID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, StateStopped, q.GetPlayerState().State)

	_, err = q.UpdatePlayerState(PlayerEvent("REWIND"), t0.Add(3*time.Second), PlaybackUpdate{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestVersionBumpsOnEveryChange(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{})
	v := q.Version()

	steps := []func(){
		func() { _, _ = q.Enqueue(userItem("a", "u")) },
		func() { _, _ = q.AddToFront(userItem("b", "u")) },
		func() { _, _ = q.DequeueVideo("a", "u") },
		func() { q.GetSongToPlay() },
		func() { _, _ = q.UpdatePlayerState(EventPlaying, time.Now(), PlaybackUpdate{VideoID: "b"}) },
		func() { _ = q.SetShouldAutoPlay(false) },
		func() { _ = q.SetPrivacyMode(PrivacyHidden) },
		func() { _ = q.PreventAutoPlay("x") },
		func() { _ = q.AllowAutoPlay("x") },
	}
	for i, step := range steps {
		step()
		next := q.Version()
		assert.Greater(t, next, v, "step %d did not bump version", i)
		v = next
	}
}

func TestSettings(t *testing.T) {
	q, _ := newTestQueue(t, ManagerOptions{AutoPlayDefault: true})

	assert.True(t, q.GetShouldAutoPlay())
	require.NoError(t, q.SetShouldAutoPlay(false))
	assert.False(t, q.GetShouldAutoPlay())

	assert.Equal(t, PrivacyUserOrAuto, q.GetPrivacyMode())
	require.NoError(t, q.SetPrivacyMode(PrivacyFullNames))
	assert.Equal(t, PrivacyFullNames, q.GetPrivacyMode())
	assert.ErrorIs(t, q.SetPrivacyMode("LOUD"), apperr.ErrInvalidArgument)

	state := q.GetQueueState()
	assert.False(t, state.AutoPlayEnabled)
	assert.Equal(t, PrivacyFullNames, state.PrivacyMode)
}

func TestSetPlayerCommandIsAtMostOnce(t *testing.T) {
	q, bus := newTestQueue(t, ManagerOptions{})

	// Nobody polling: the command is lost, not queued.
	delivered, err := q.SetPlayerCommand(CommandPause)
	require.NoError(t, err)
	assert.False(t, delivered)

	got := make(chan DeviceUpdate, 1)
	go func() {
		u, err := q.WaitForDeviceUpdate(context.Background())
		assert.NoError(t, err)
		got <- u
	}()
	waitForListeners(t, bus, broker.DeviceTopic(q.Key()), 1)

	delivered, err = q.SetPlayerCommand(CommandNextTrack)
	require.NoError(t, err)
	assert.True(t, delivered)

	u := <-got
	require.NotNil(t, u.Command)
	assert.Equal(t, CommandNextTrack, *u.Command)

	_, err = q.SetPlayerCommand(PlayerCommand("EJECT"))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestWaitForDeviceUpdateReturnsPendingSongs(t *testing.T) {
	q, bus := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("a", "u"))
	_, _ = q.Enqueue(userItem("b", "u"))

	u, err := q.WaitForDeviceUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, u.QueueLength)
	require.Len(t, u.Added, 2)
	assert.Equal(t, "a", u.Added[0].VideoID)

	// Pending songs were consumed, so the next poll blocks until an add.
	got := make(chan DeviceUpdate, 1)
	go func() {
		u, err := q.WaitForDeviceUpdate(context.Background())
		assert.NoError(t, err)
		got <- u
	}()
	waitForListeners(t, bus, broker.DeviceTopic(q.Key()), 1)
	_, _ = q.Enqueue(userItem("c", "u"))

	select {
	case u := <-got:
		require.Len(t, u.Added, 1)
		assert.Equal(t, "c", u.Added[0].VideoID)
		assert.Equal(t, 3, u.QueueLength)
	case <-time.After(time.Second):
		t.Fatal("device poll was not resolved")
	}
}

func TestPlayedSongIsNotReportedAsAdded(t *testing.T) {
	q, bus := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("abc", "u"))

	item, ok := q.GetSongToPlay()
	require.True(t, ok)
	require.Equal(t, "abc", item.VideoID)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.WaitForDeviceUpdate(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a song already handed to the device must not come back as added")
	assert.Zero(t, bus.Listeners(broker.DeviceTopic(q.Key())))
}

func TestGetSongToPlayWakesDevice(t *testing.T) {
	q, bus := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("a", "u"))
	_, _ = q.Enqueue(userItem("b", "u"))
	_, err := q.WaitForDeviceUpdate(context.Background())
	require.NoError(t, err)

	got := make(chan DeviceUpdate, 1)
	go func() {
		u, err := q.WaitForDeviceUpdate(context.Background())
		assert.NoError(t, err)
		got <- u
	}()
	waitForListeners(t, bus, broker.DeviceTopic(q.Key()), 1)

	_, ok := q.GetSongToPlay()
	require.True(t, ok)

	select {
	case u := <-got:
		assert.Equal(t, 1, u.QueueLength)
		assert.Empty(t, u.Added)
	case <-time.After(time.Second):
		t.Fatal("device poll was not resolved by the queue shrinking")
	}
}

func TestUnstampedUpdatesDoNotAdvanceDeviceClock(t *testing.T) {
	clock := newFakeClock()
	q, _ := newTestQueue(t, ManagerOptions{Clock: clock.Now})
	deviceNow := clock.Now().Add(-time.Minute)

	applied, err := q.UpdatePlayerState(EventPlaying, deviceNow, PlaybackUpdate{VideoID: "abc"})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = q.UpdatePlayerState(EventPaused, time.Time{}, PlaybackUpdate{Position: 5})
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, clock.Now(), q.GetPlayerState().LastUpdated)

	// The device clock lags the server, but it still moved forward.
	applied, err = q.UpdatePlayerState(EventPlaying, deviceNow.Add(time.Second), PlaybackUpdate{Position: 6})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatePlaying, q.GetPlayerState().State)

	applied, err = q.UpdatePlayerState(EventPaused, deviceNow, PlaybackUpdate{})
	require.NoError(t, err)
	assert.False(t, applied, "older device-stamped update must still be dropped")
}

func TestWaitForChange(t *testing.T) {
	q, bus := newTestQueue(t, ManagerOptions{})
	_, _ = q.Enqueue(userItem("a", "u"))

	state, err := q.WaitForChange(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, state.Queue, 1)

	since := state.LastUpdated
	got := make(chan QueueState, 1)
	go func() {
		s, err := q.WaitForChange(context.Background(), since)
		assert.NoError(t, err)
		got <- s
	}()
	waitForListeners(t, bus, broker.ClientTopic(q.Key()), 1)
	_, _ = q.Enqueue(userItem("b", "u"))

	select {
	case s := <-got:
		assert.Greater(t, s.LastUpdated, since)
		assert.Len(t, s.Queue, 2)
	case <-time.After(time.Second):
		t.Fatal("client poll was not resolved")
	}
}

func TestWaitForChangeCancellation(t *testing.T) {
	q, bus := newTestQueue(t, ManagerOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.WaitForChange(ctx, q.Version())
		errCh <- err
	}()
	waitForListeners(t, bus, broker.ClientTopic(q.Key()), 1)
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, bus.Listeners(broker.ClientTopic(q.Key())))
}

func TestRenderAddedBy(t *testing.T) {
	names := func(token string) string {
		if token == "tok-alice" {
			return "Alice"
		}
		return ""
	}
	user := userItem("v", "tok-alice")
	auto := QueueItem{VideoID: "v", Influence: InfluenceAutoAdded}

	tests := []struct {
		name string
		mode PrivacyMode
		item QueueItem
		want string
	}{
		{"hidden user", PrivacyHidden, user, ""},
		{"hidden auto", PrivacyHidden, auto, ""},
		{"auto", PrivacyUserOrAuto, auto, "Added automatically"},
		{"full names auto", PrivacyFullNames, auto, "Added automatically"},
		{"full names", PrivacyFullNames, user, "Added by Alice"},
		{"full names unknown token", PrivacyFullNames, userItem("v", "tok-bob"), "Added by a user"},
		{"user or auto", PrivacyUserOrAuto, user, "Added by a user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderAddedBy(tt.mode, tt.item, names))
		})
	}
}

func TestParsers(t *testing.T) {
	cmd, err := ParsePlayerCommand("replaytrack")
	require.NoError(t, err)
	assert.Equal(t, CommandReplayTrack, cmd)
	_, err = ParsePlayerCommand("SKIP")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	ev, err := ParsePlayerEvent("ended")
	require.NoError(t, err)
	assert.Equal(t, EventEnded, ev)
	_, err = ParsePlayerEvent("")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	mode, err := ParsePrivacyMode("fullname")
	require.NoError(t, err)
	assert.Equal(t, PrivacyFullNames, mode)
	mode, err = ParsePrivacyMode("USERAUTO")
	require.NoError(t, err)
	assert.Equal(t, PrivacyUserOrAuto, mode)
	_, err = ParsePrivacyMode("public")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	policy, err := ParseDequeuePolicy("Owner")
	require.NoError(t, err)
	assert.Equal(t, DequeueOwnerOnly, policy)
	_, err = ParseDequeuePolicy("admins")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
