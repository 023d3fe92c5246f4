package videocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ytpm:video:"

// MemoryStore is a bounded, expiring in-process tier.
type MemoryStore struct {
	lru *expirable.LRU[string, Metadata]
}

// NewMemoryStore creates an LRU holding at most size entries for ttl each.
// A zero ttl keeps entries until they are evicted by size.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, Metadata](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, videoID string) (Metadata, bool, error) {
	m, ok := s.lru.Get(videoID)
	return m, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, m Metadata) error {
	s.lru.Add(m.VideoID, m)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

// RedisStore shares metadata between processes. Values are JSON encoded.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed tier. A zero ttl stores without expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, videoID string) (Metadata, bool, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+videoID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("redis get: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, false, fmt.Errorf("decode cached video %s: %w", videoID, err)
	}
	return m, true, nil
}

func (s *RedisStore) Set(ctx context.Context, m Metadata) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode video %s: %w", m.VideoID, err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+m.VideoID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
