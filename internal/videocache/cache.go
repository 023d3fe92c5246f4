// Package videocache provides cache-aside access to YouTube video metadata.
// Concurrent misses for the same video share one upstream fetch.
package videocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ytpm/backend/internal/apperr"
)

// fetchTimeout bounds a coalesced upstream fetch. The fetch is detached from
// the first caller's context so one abandoned request cannot fail the others.
const fetchTimeout = 15 * time.Second

// Metadata is the display information for a single video.
type Metadata struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ChannelName  string `json:"channelName"`
}

// Fetcher looks up a video upstream. Implementations return an error wrapping
// apperr.ErrNotFound when the video does not exist.
type Fetcher interface {
	FetchVideo(ctx context.Context, videoID string) (Metadata, error)
}

// Store is one cache tier.
type Store interface {
	Get(ctx context.Context, videoID string) (Metadata, bool, error)
	Set(ctx context.Context, m Metadata) error
}

// Cache is a two-tier read-through cache in front of a Fetcher.
type Cache struct {
	fetcher Fetcher
	local   Store
	remote  Store
	group   singleflight.Group
	fetches atomic.Int64
}

// New creates a Cache. remote may be nil when no shared tier is configured.
func New(fetcher Fetcher, local, remote Store) *Cache {
	return &Cache{
		fetcher: fetcher,
		local:   local,
		remote:  remote,
	}
}

// AddOrReplaceInCache upserts metadata in every tier. It is used to pre-warm
// the cache from search results.
func (c *Cache) AddOrReplaceInCache(ctx context.Context, m Metadata) {
	if m.VideoID == "" {
		return
	}
	c.store(ctx, m)
}

// GetFromCacheOrAPI returns cached metadata or fetches it upstream. A NotFound
// result is returned to every waiter but never cached.
func (c *Cache) GetFromCacheOrAPI(ctx context.Context, videoID string) (Metadata, error) {
	if videoID == "" {
		return Metadata{}, fmt.Errorf("empty video id: %w", apperr.ErrInvalidArgument)
	}

	if m, ok := c.lookup(ctx, videoID); ok {
		return m, nil
	}

	ch := c.group.DoChan(videoID, func() (any, error) {
		// Another flight may have stored the entry between our lookup and
		// acquiring the key.
		if m, ok, _ := c.local.Get(ctx, videoID); ok {
			return m, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		c.fetches.Add(1)
		m, err := c.fetcher.FetchVideo(fetchCtx, videoID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return Metadata{}, err
			}
			slog.Warn("video metadata fetch failed", slog.String("video_id", videoID), slog.Any("error", err))
			if errors.Is(err, apperr.ErrUpstreamUnavailable) {
				return Metadata{}, err
			}
			return Metadata{}, fmt.Errorf("fetch %s: %w: %w", videoID, apperr.ErrUpstreamUnavailable, err)
		}

		c.store(fetchCtx, m)
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Metadata{}, res.Err
		}
		return res.Val.(Metadata), nil
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	}
}

// Fetches returns the number of upstream fetches issued so far.
func (c *Cache) Fetches() int64 {
	return c.fetches.Load()
}

func (c *Cache) lookup(ctx context.Context, videoID string) (Metadata, bool) {
	if m, ok, _ := c.local.Get(ctx, videoID); ok {
		return m, true
	}
	if c.remote == nil {
		return Metadata{}, false
	}

	m, ok, err := c.remote.Get(ctx, videoID)
	if err != nil {
		slog.Warn("remote video cache read failed", slog.String("video_id", videoID), slog.Any("error", err))
		return Metadata{}, false
	}
	if ok {
		_ = c.local.Set(ctx, m)
	}
	return m, ok
}

func (c *Cache) store(ctx context.Context, m Metadata) {
	_ = c.local.Set(ctx, m)
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, m); err != nil {
		slog.Warn("remote video cache write failed", slog.String("video_id", m.VideoID), slog.Any("error", err))
	}
}
