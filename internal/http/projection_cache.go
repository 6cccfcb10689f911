package http

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

// projector is the read side the cache sits in front of.
type projector interface {
	ProjectPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Occurrence, error)
}

// projectionCache memoizes month projections per user. Concurrent misses for
// the same month share one load. A write for the user bumps its generation so
// a load that started before the write is never stored.
type projectionCache struct {
	source projector
	items  *cache.LRUCache[[]core.Occurrence]
	group  singleflight.Group

	mu          sync.Mutex
	generations map[int64]uint64
}

func newProjectionCache(source projector, size int, ttl time.Duration) *projectionCache {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &projectionCache{
		source:      source,
		items:       cache.NewLRUCache[[]core.Occurrence](size, ttl),
		generations: make(map[int64]uint64),
	}
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("u%d:", userID)
}

func projectionKey(userID int64, p core.Period) string {
	return userPrefix(userID) + p.String()
}

func (c *projectionCache) generation(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// Project returns the projection of p, loading it on a miss.
func (c *projectionCache) Project(ctx context.Context, userID int64, p core.Period) ([]core.Occurrence, error) {
	key := projectionKey(userID, p)
	if cached, ok := c.items.Get(key); ok {
		return slices.Clone(cached), nil
	}

	gen := c.generation(userID)
	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		occurrences, err := c.source.ProjectPeriod(context.WithoutCancel(ctx), userID, p)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generations[userID] == gen {
			c.items.Set(key, occurrences)
		}
		c.mu.Unlock()
		return occurrences, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]core.Occurrence)), nil
}

// InvalidateUser drops every cached month of the user.
func (c *projectionCache) InvalidateUser(userID int64) int {
	c.mu.Lock()
	c.generations[userID]++
	c.mu.Unlock()
	return c.items.DeletePrefix(userPrefix(userID))
}

// CleanExpired lets the cache manager sweep stale months.
func (c *projectionCache) CleanExpired() int {
	return c.items.CleanExpired()
}

func (c *projectionCache) Size() int {
	return c.items.Size()
}
