package query

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time view of a cache entry.
type Entry struct {
	Status    Status
	Data      any // last successful value, kept across failed refetches
	Err       error
	FetchedAt time.Time
	Stale     bool
}

type entry struct {
	Entry
	gen        uint64 // bumped on every invalidation
	fetch      uint64 // bumped when a fetch starts; older fetches are discarded
	lastAccess time.Time
}

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	StaleTime time.Duration
	GCTime    time.Duration
	Now       func() time.Time
}

// Cache holds query results by Key.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group

	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time
}

func New(opts Options) *Cache {
	c := &Cache{
		entries:   make(map[Key]*entry),
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		now:       opts.Now,
	}
	if c.staleTime <= 0 {
		c.staleTime = DefaultStaleTime
	}
	if c.gcTime <= 0 {
		c.gcTime = DefaultGCTime
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Fetch returns the cached value for key if it is fresh, and otherwise calls
// fn and caches its result. Concurrent fetches of the same key share one call
// to fn. A failed fetch keeps the previous value in the entry and records
// the error.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := c.fresh(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		e, gen, fetch := c.begin(key)
		v, err := fn(context.WithoutCancel(ctx))
		c.finish(key, e, gen, fetch, v, err)
		return v, err
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		t, _ := res.Val.(T)
		return t, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Mutate runs fn and, only if it succeeds, invalidates the targets. A failed
// mutation leaves the cache untouched.
func Mutate[T any](ctx context.Context, c *Cache, fn func(context.Context) (T, error), invalidate ...Target) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	c.Invalidate(invalidate...)
	return v, nil
}

func (c *Cache) fresh(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	e.lastAccess = now
	if e.Status != StatusSuccess || c.isStale(e, now) {
		return nil, false
	}
	return e.Data, true
}

func (c *Cache) begin(key Key) (*entry, uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.Status = StatusLoading
	e.lastAccess = c.now()
	e.fetch++
	return e, e.gen, e.fetch
}

func (c *Cache) finish(key Key, e *entry, gen, fetch uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Removed or cleared while the fetch was in flight
	if c.entries[key] != e {
		return
	}
	// Superseded by a fetch started after an invalidation
	if e.fetch != fetch {
		return
	}

	if err != nil {
		e.Status = StatusError
		e.Err = err
		log.Debug().Str("key", key.String()).Err(err).Msg("query fetch failed")
		return
	}

	e.Status = StatusSuccess
	e.Data = v
	e.Err = nil
	e.FetchedAt = c.now()
	// An invalidation that raced the fetch wins: the result may predate it.
	e.Stale = e.gen != gen
}

func (c *Cache) isStale(e *entry, now time.Time) bool {
	return e.Stale || now.Sub(e.FetchedAt) >= c.staleTime
}

// Peek returns the current state of key without fetching.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	view := e.Entry
	view.Stale = e.Status == StatusSuccess && c.isStale(e, c.now())
	if e.Status == StatusError {
		view.Stale = true
	}
	return view, true
}

// Invalidate marks every entry matched by a target stale, so its next read
// refetches. It returns the number of entries marked.
func (c *Cache) Invalidate(targets ...Target) int {
	if len(targets) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if !matchesAny(key, targets) {
			continue
		}
		e.Stale = true
		e.gen++
		// Later reads start a new fetch instead of joining the old one
		c.group.Forget(key.String())
		n++
	}

	log.Debug().Int("entries", n).Msg("query cache invalidated")
	return n
}

// InvalidateKind marks every entry of the given kinds stale.
func (c *Cache) InvalidateKind(kinds ...Kind) int {
	targets := make([]Target, len(kinds))
	for i, k := range kinds {
		targets[i] = k
	}
	return c.Invalidate(targets...)
}

// Remove evicts the matched entries. In-flight fetches for them are dropped
// on arrival and later reads do not join them.
func (c *Cache) Remove(targets ...Target) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if matchesAny(key, targets) {
			delete(c.entries, key)
			c.group.Forget(key.String())
			n++
		}
	}
	return n
}

// Clear evicts everything, including any fetch in flight.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.group.Forget(key.String())
	}
	c.entries = make(map[Key]*entry)
}

// Sweep evicts entries not read for longer than the GC time and returns how
// many were removed. Entries with a fetch in flight are kept.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if e.Status == StatusLoading {
			continue
		}
		if now.Sub(e.lastAccess) > c.gcTime {
			delete(c.entries, key)
			n++
		}
	}
	if n > 0 {
		log.Debug().Int("entries", n).Msg("query cache swept")
	}
	return n
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func matchesAny(key Key, targets []Target) bool {
	for _, t := range targets {
		if t.matches(key) {
			return true
		}
	}
	return false
}
