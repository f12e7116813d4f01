// Package cache holds the short-lived, per-owner view of post lists that sits
// in front of the post store.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/isdelr/postkeep-be/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched list is served without refetching.
	DefaultTTL = 300 * time.Second
	// DefaultCapacity is the maximum number of owners held at once.
	DefaultCapacity = 100
)

// FetchFunc performs the authoritative read for one owner.
type FetchFunc func(ctx context.Context) ([]models.Post, error)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries       int    `json:"entries"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Expirations   uint64 `json:"expirations"`
	Invalidations uint64 `json:"invalidations"`
}

type entry struct {
	ownerID   string
	posts     []models.Post
	expiresAt time.Time
}

// PostCache memoizes post lists per owner with a fixed TTL and a capacity
// bound. When full, the entry inserted or refreshed longest ago is evicted.
// It is safe for concurrent use; concurrent misses for one owner share a
// single fetch.
type PostCache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front: least recently inserted or refreshed
	stats   Stats

	// fills maps an owner to the token of the one in-flight fetch allowed to
	// store its result. Invalidate clears it.
	fills    map[string]uint64
	lastFill uint64

	group singleflight.Group
}

// NewPostCache creates a cache. Non-positive ttl or capacity fall back to
// the defaults and a nil now falls back to time.Now.
func NewPostCache(ttl time.Duration, capacity int, now func() time.Time) *PostCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &PostCache{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		fills:    make(map[string]uint64),
	}
}

// Get returns the live entry for ownerID, or calls fetch, stores its result
// and returns it. Fetch errors are returned unchanged and nothing is stored.
func (c *PostCache) Get(ctx context.Context, ownerID string, fetch FetchFunc) ([]models.Post, error) {
	c.mu.Lock()
	if posts, ok := c.lookupLocked(ownerID); ok {
		c.stats.Hits++
		c.mu.Unlock()
		return clonePosts(posts), nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	// The shared fetch must not die with whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(ownerID, func() (interface{}, error) {
		return c.load(fetchCtx, ownerID, fetch)
	})
	if err != nil {
		return nil, err
	}
	return clonePosts(v.([]models.Post)), nil
}

func (c *PostCache) load(ctx context.Context, ownerID string, fetch FetchFunc) ([]models.Post, error) {
	c.mu.Lock()
	c.lastFill++
	token := c.lastFill
	c.fills[ownerID] = token
	c.mu.Unlock()

	posts, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.fills[ownerID] == token
	if current {
		delete(c.fills, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	if current {
		c.storeLocked(ownerID, clonePosts(posts))
	}
	return posts, nil
}

// Invalidate drops the entry for ownerID. A fetch already in flight for the
// owner still answers its current waiters but its result is not cached, and
// later callers start a new fetch.
func (c *PostCache) Invalidate(_ context.Context, ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[ownerID]; ok {
		c.removeLocked(el)
	}
	delete(c.fills, ownerID)
	c.group.Forget(ownerID)
	c.stats.Invalidations++
}

// PurgeExpired removes every expired entry and reports how many were dropped.
func (c *PostCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			c.stats.Expirations++
			purged++
		}
		el = next
	}
	return purged
}

// Len reports the number of entries held, expired or not.
func (c *PostCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *PostCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}

func (c *PostCache) lookupLocked(ownerID string) ([]models.Post, bool) {
	el, ok := c.entries[ownerID]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(el)
		c.stats.Expirations++
		return nil, false
	}
	return e.posts, true
}

func (c *PostCache) storeLocked(ownerID string, posts []models.Post) {
	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.entries[ownerID]; ok {
		e := el.Value.(*entry)
		e.posts = posts
		e.expiresAt = expiresAt
		c.order.MoveToBack(el)
		return
	}
	for c.order.Len() >= c.capacity {
		c.removeLocked(c.order.Front())
		c.stats.Evictions++
	}
	c.entries[ownerID] = c.order.PushBack(&entry{ownerID: ownerID, posts: posts, expiresAt: expiresAt})
}

func (c *PostCache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).ownerID)
}

func clonePosts(posts []models.Post) []models.Post {
	out := make([]models.Post, len(posts))
	copy(out, posts)
	return out
}

// Noop never caches; every Get calls fetch.
type Noop struct{}

// Get calls fetch directly.
func (Noop) Get(ctx context.Context, _ string, fetch FetchFunc) ([]models.Post, error) {
	posts, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

// Invalidate does nothing.
func (Noop) Invalidate(context.Context, string) {}
