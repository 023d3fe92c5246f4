package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ytpm/backend/internal/broker"
)

const maxKeyAttempts = 100

// ManagerOptions configures every room the Manager creates.
type ManagerOptions struct {
	IdleTimeout      time.Duration
	AutoPlayDefault  bool
	AutoPlayCooldown int
	DequeuePolicy    DequeuePolicy
	RelatedSource    RelatedVideoSource
	Clock            func() time.Time
}

// Manager is the registry of rooms. Each room is indexed by its shareable key
// and by its device token; both indices are always mutated together.
type Manager struct {
	bus  *broker.Bus
	opts ManagerOptions

	mu      sync.RWMutex
	byKey   map[string]*PlayerQueue
	byToken map[string]*PlayerQueue

	newKey   func() (string, error)
	newToken func() (string, error)
}

// NewManager creates an empty registry publishing room events on bus.
func NewManager(bus *broker.Bus, opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		bus:      bus,
		opts:     opts,
		byKey:    make(map[string]*PlayerQueue),
		byToken:  make(map[string]*PlayerQueue),
		newKey:   GenerateRoomKey,
		newToken: GeneratePlayerToken,
	}
}

// CreateNewPlayerQueue allocates a fresh key and player token and registers
// a new room under both.
func (m *Manager) CreateNewPlayerQueue() (*PlayerQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.uniqueLocked(m.newKey, m.byKey)
	if err != nil {
		return nil, fmt.Errorf("room key: %w", err)
	}
	token, err := m.uniqueLocked(m.newToken, m.byToken)
	if err != nil {
		return nil, fmt.Errorf("player token: %w", err)
	}

	q := newPlayerQueue(key, token, m.bus, m.opts)
	m.byKey[key] = q
	m.byToken[token] = q

	slog.Info("room created", slog.String("room_key", key), slog.Int("rooms", len(m.byKey)))
	return q, nil
}

func (m *Manager) uniqueLocked(gen func() (string, error), index map[string]*PlayerQueue) (string, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		v, err := gen()
		if err != nil {
			return "", err
		}
		if _, taken := index[v]; !taken {
			return v, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique value after %d attempts", maxKeyAttempts)
}

// GetPlayerQueueForKey looks up a room by its shareable key and marks it as
// in use.
func (m *Manager) GetPlayerQueueForKey(key string) (*PlayerQueue, bool) {
	return m.lookup(m.byKey, key)
}

// GetPlayerQueueForToken looks up a room by its device token and marks it as
// in use.
func (m *Manager) GetPlayerQueueForToken(token string) (*PlayerQueue, bool) {
	return m.lookup(m.byToken, token)
}

// lookup touches the room while holding the read lock, so a concurrent sweep
// cannot evict a room between the lookup and the caller's first operation.
func (m *Manager) lookup(index map[string]*PlayerQueue, id string) (*PlayerQueue, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := index[id]
	if ok {
		q.Touch()
	}
	return q, ok
}

// QueueExistsForKey reports whether key names a live room.
func (m *Manager) QueueExistsForKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byKey[key]
	return ok
}

// GetAllQueueKeys returns every live room key, sorted.
func (m *Manager) GetAllQueueKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NumQueues returns the number of live rooms.
func (m *Manager) NumQueues() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

// Summaries describes every live room, sorted by key.
func (m *Manager) Summaries() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.byKey))
	for _, q := range m.byKey {
		out = append(out, q.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CleanUpOldPlayerQueues evicts rooms idle for longer than the configured
// timeout and returns how many were removed. Outstanding long polls on an
// evicted room are rejected with apperr.ErrRoomClosed.
func (m *Manager) CleanUpOldPlayerQueues() int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock()
	evicted := 0
	for key, q := range m.byKey {
		if !q.retireIfIdle(now, m.opts.IdleTimeout) {
			continue
		}
		delete(m.byKey, key)
		delete(m.byToken, q.playerToken)
		evicted++
		slog.Info("room evicted", slog.String("room_key", key))
	}
	return evicted
}

// Run sweeps idle rooms every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanUpOldPlayerQueues(); n > 0 {
				slog.Info("idle rooms swept", slog.Int("evicted", n), slog.Int("remaining", m.NumQueues()))
			}
		}
	}
}
