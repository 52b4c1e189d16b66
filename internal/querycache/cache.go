// Package querycache keeps API responses keyed by path so that views can share
// fetched data. Concurrent fetches of one path collapse into one request and
// Refresh revalidates in the background while stale data stays readable.
package querycache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/joescharf/rq/internal/logging"
)

// Fetcher loads the raw JSON at path. *client.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// Result is the cache's view of one path.
type Result struct {
	Data      json.RawMessage
	Err       error
	Loading   bool
	FetchedAt time.Time
}

// Present reports whether data is available, stale or not.
func (r Result) Present() bool { return r.Data != nil }

type entry struct {
	data      json.RawMessage
	err       error
	fetchedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	fetch Fetcher
	log   zerolog.Logger
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	pending map[string]int

	group singleflight.Group
	bg    sync.WaitGroup
}

// New creates an empty cache backed by f.
func New(f Fetcher) *Cache {
	return &Cache{
		fetch:   f,
		log:     logging.Component("querycache"),
		now:     time.Now,
		entries: make(map[string]*entry),
		pending: make(map[string]int),
	}
}

// Get fetches path, sharing the request with any concurrent caller, and stores
// the outcome. A failed fetch keeps previously stored data.
func (c *Cache) Get(ctx context.Context, path string) Result {
	c.begin(path)
	defer c.end(path)

	v, err, shared := c.group.Do(path, func() (any, error) {
		return c.fetch.Get(ctx, path)
	})
	if shared {
		c.log.Debug().Str("path", path).Msg("shared in-flight fetch")
	}

	var data json.RawMessage
	if err == nil {
		data = v.(json.RawMessage)
	}
	return c.store(path, data, err)
}

// Cached returns what is stored under key without fetching.
func (c *Cache) Cached(key string) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}
	}
	return Result{Data: e.data, Err: e.err, FetchedAt: e.fetchedAt}
}

// Set stores data under key as if it had just been fetched.
func (c *Cache) Set(key string, data json.RawMessage) {
	c.store(key, data, nil)
}

// Prefetch starts a background fetch of path unless one is already running.
// Observe the outcome with Peek.
func (c *Cache) Prefetch(ctx context.Context, path string) {
	c.mu.RLock()
	busy := c.pending[path] > 0
	c.mu.RUnlock()
	if busy {
		return
	}

	c.begin(path)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer c.end(path)
		c.Get(ctx, path)
	}()
}

// Peek is Cached plus a Loading flag set while a fetch of path is pending.
func (c *Cache) Peek(path string) Result {
	r := c.Cached(path)
	c.mu.RLock()
	r.Loading = c.pending[path] > 0
	c.mu.RUnlock()
	return r
}

// Refresh revalidates each stored path in the background and returns at once.
// Paths that were never stored have nothing to revalidate.
func (c *Cache) Refresh(paths ...string) {
	for _, p := range paths {
		c.mu.RLock()
		_, ok := c.entries[p]
		c.mu.RUnlock()
		if !ok {
			c.log.Debug().Str("path", p).Msg("refresh skipped, not cached")
			continue
		}

		c.begin(p)
		c.bg.Add(1)
		go func(path string) {
			defer c.bg.Done()
			defer c.end(path)
			if r := c.Get(context.Background(), path); r.Err != nil {
				c.log.Warn().Err(r.Err).Str("path", path).Msg("revalidation failed, keeping stale data")
			}
		}(p)
	}
}

// Wait blocks until every background fetch started so far has finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) store(path string, data json.RawMessage, err error) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		e = &entry{}
		c.entries[path] = e
	}
	if err != nil {
		e.err = err
	} else {
		e.data = data
		e.err = nil
		e.fetchedAt = c.now()
	}
	return Result{Data: e.data, Err: e.err, FetchedAt: e.fetchedAt}
}

func (c *Cache) begin(path string) {
	c.mu.Lock()
	c.pending[path]++
	c.mu.Unlock()
}

func (c *Cache) end(path string) {
	c.mu.Lock()
	if c.pending[path]--; c.pending[path] <= 0 {
		delete(c.pending, path)
	}
	c.mu.Unlock()
}
