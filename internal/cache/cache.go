// Package cache holds the session-scoped entity cache. It is the only
// shared mutable state in the client; every snapshot handed out is a clone,
// so callers never alias cache-owned memory.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

// DefaultFreshness is how long a fetched entity is served without a refetch.
const DefaultFreshness = 30 * time.Second

type key struct {
	kind entity.Kind
	id   string
}

type entry struct {
	ent       entity.Entity
	version   uint64
	fetchedAt time.Time
}

// Cache maps (kind, id) to the latest known entity with a version counter
// and a staleness stamp. Retention is unbounded for the session lifetime;
// mobile session scale does not need eviction.
type Cache struct {
	gw       gateway.Gateway
	freshFor time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[key]*entry
	watch   []func(kind entity.Kind, id string)

	group singleflight.Group
}

func New(gw gateway.Gateway, freshFor time.Duration) *Cache {
	if freshFor <= 0 {
		freshFor = DefaultFreshness
	}
	return &Cache{
		gw:       gw,
		freshFor: freshFor,
		now:      time.Now,
		entries:  make(map[key]*entry),
	}
}

// SetClock overrides the freshness clock, for tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// OnChange registers a callback fired whenever an entry is replaced or
// invalidated. The feed assembler uses this to re-render incrementally.
// Callbacks run synchronously on the mutating goroutine and must be cheap.
func (c *Cache) OnChange(fn func(kind entity.Kind, id string)) {
	c.mu.Lock()
	c.watch = append(c.watch, fn)
	c.mu.Unlock()
}

// Get returns the cached entity when fresh, otherwise reads through to the
// gateway. Concurrent gets for one key are coalesced into a single fetch.
// A fetch that loses a race against an optimistic write is discarded, never
// cached as stale-but-newer.
func (c *Cache) Get(ctx context.Context, kind entity.Kind, id string) (entity.Entity, error) {
	k := key{kind, id}

	c.mu.RLock()
	if e, ok := c.entries[k]; ok && c.fresh(e) {
		ent := e.ent.Clone()
		c.mu.RUnlock()
		return ent, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(string(kind)+"/"+id, func() (interface{}, error) {
		c.mu.RLock()
		var before uint64
		if e, ok := c.entries[k]; ok {
			if c.fresh(e) {
				ent := e.ent.Clone()
				c.mu.RUnlock()
				return ent, nil
			}
			before = e.version
		}
		c.mu.RUnlock()

		fetched, err := c.gw.Fetch(ctx, kind, id)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[k]; ok && e.version != before {
			// a local mutation landed while the fetch was in flight;
			// the local state wins and the fetch result is dropped
			return e.ent.Clone(), nil
		}
		c.install(k, fetched)
		return fetched.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(entity.Entity), nil
}

// Peek returns the cached entity regardless of freshness, without fetching.
func (c *Cache) Peek(kind entity.Kind, id string) (entity.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[key{kind, id}]; ok {
		return e.ent.Clone(), true
	}
	return nil, false
}

// Put overwrites the entry and bumps its version. Both fetch results and
// optimistic writes land here.
func (c *Cache) Put(e entity.Entity) uint64 {
	k := key{e.Kind(), e.EntityID()}
	c.mu.Lock()
	v := c.install(k, e)
	fns := c.watch
	c.mu.Unlock()
	for _, fn := range fns {
		fn(k.kind, k.id)
	}
	return v
}

// Invalidate marks the entry stale so the next Get refetches.
func (c *Cache) Invalidate(kind entity.Kind, id string) {
	k := key{kind, id}
	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		e.fetchedAt = time.Time{}
	}
	fns := c.watch
	c.mu.Unlock()
	for _, fn := range fns {
		fn(kind, id)
	}
}

// MarkFresh re-stamps the entry after an acked write settles.
func (c *Cache) MarkFresh(kind entity.Kind, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key{kind, id}]; ok {
		e.fetchedAt = c.now()
	}
}

// Version reports the entry's version counter, zero when absent.
func (c *Cache) Version(kind entity.Kind, id string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[key{kind, id}]; ok {
		return e.version
	}
	return 0
}

func (c *Cache) fresh(e *entry) bool {
	return !e.fetchedAt.IsZero() && c.now().Sub(e.fetchedAt) < c.freshFor
}

// install stores a clone and bumps the version. Callers hold c.mu.
func (c *Cache) install(k key, ent entity.Entity) uint64 {
	e, ok := c.entries[k]
	if !ok {
		e = &entry{}
		c.entries[k] = e
	}
	e.ent = ent.Clone()
	e.version++
	e.fetchedAt = c.now()
	return e.version
}
