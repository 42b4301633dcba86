// Package snapshot fetches the static schedule and the real-time feed and keeps the latest
// snapshot of each in a cache with a time to live.
package snapshot

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
)

// Cache holds at most one snapshot, which is dropped once it is older than the TTL.
type Cache[T any] interface {
	// Get returns the snapshot, or false if there is none or it has expired.
	Get() (T, bool)
	Set(T)
	// LastFetchedAt is the time of the last Set, or zero if there was none.
	LastFetchedAt() time.Time
	TTL() time.Duration
}

const cacheKey = "snapshot"

// TTLCache is a Cache backed by a single entry LRU cache.
type TTLCache[T any] struct {
	ttl   time.Duration
	clock gcache.Clock
	cache gcache.Cache

	mu            sync.Mutex
	lastFetchedAt time.Time
}

// NewCache builds a cache whose entry expires after ttl. A non-positive ttl means the entry never
// expires. If clock is nil the wall clock is used.
func NewCache[T any](ttl time.Duration, clock gcache.Clock) *TTLCache[T] {
	if clock == nil {
		clock = gcache.NewRealClock()
	}
	builder := gcache.New(1).LRU().Clock(clock)
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &TTLCache[T]{
		ttl:   ttl,
		clock: clock,
		cache: builder.Build(),
	}
}

func (c *TTLCache[T]) Get() (T, bool) {
	var zero T
	v, err := c.cache.Get(cacheKey)
	if err != nil {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func (c *TTLCache[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Set only fails for loader caches.
	_ = c.cache.Set(cacheKey, v)
	c.lastFetchedAt = c.clock.Now()
}

func (c *TTLCache[T]) LastFetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFetchedAt
}

func (c *TTLCache[T]) TTL() time.Duration {
	return c.ttl
}
