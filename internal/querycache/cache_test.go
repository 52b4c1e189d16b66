package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	bodies  map[string]string
	errs    map[string]error
	release chan struct{}
	active  atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:  map[string]int{},
		bodies: map[string]string{},
		errs:   map[string]error{},
	}
}

func (f *fakeFetcher) Get(_ context.Context, path string) (json.RawMessage, error) {
	f.active.Add(1)
	defer f.active.Add(-1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return json.RawMessage(f.bodies[path]), nil
}

func (f *fakeFetcher) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFetcher) set(path, body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
	f.errs[path] = err
}

func TestGet_StoresResult(t *testing.T) {
	f := newFakeFetcher()
	f.set("/a", `{"x":1}`, nil)
	c := New(f)

	r := c.Get(context.Background(), "/a")
	require.NoError(t, r.Err)
	assert.True(t, r.Present())
	assert.JSONEq(t, `{"x":1}`, string(r.Data))
	assert.False(t, r.FetchedAt.IsZero())

	assert.JSONEq(t, `{"x":1}`, string(c.Cached("/a").Data))
	assert.Equal(t, 1, f.count("/a"))
}

func TestGet_AlwaysRefetches(t *testing.T) {
	f := newFakeFetcher()
	f.set("/a", `1`, nil)
	c := New(f)

	c.Get(context.Background(), "/a")
	c.Get(context.Background(), "/a")
	assert.Equal(t, 2, f.count("/a"))
}

func TestGet_ErrorKeepsStaleData(t *testing.T) {
	f := newFakeFetcher()
	f.set("/a", `"old"`, nil)
	c := New(f)
	c.Get(context.Background(), "/a")

	boom := errors.New("boom")
	f.set("/a", "", boom)
	r := c.Get(context.Background(), "/a")
	assert.ErrorIs(t, r.Err, boom)
	assert.Equal(t, `"old"`, string(r.Data))
}

func TestGet_CollapsesConcurrentFetches(t *testing.T) {
	f := newFakeFetcher()
	f.set("/a", `1`, nil)
	f.release = make(chan struct{})
	c := New(f)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(context.Background(), "/a")
		}()
	}
	// Let every caller join the single in-flight fetch before releasing it.
	require.Eventually(t, func() bool { return f.active.Load() == 1 }, timeout, tick)
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.pending["/a"] == 5
	}, timeout, tick)
	// Counting happens just before the shared call; give stragglers time to join.
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, 1, f.count("/a"))
}

func TestCached_Missing(t *testing.T) {
	c := New(newFakeFetcher())
	r := c.Cached("/nope")
	assert.False(t, r.Present())
	assert.NoError(t, r.Err)
}

func TestSet(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	c.Set("list", json.RawMessage(`{"count":0,"results":[]}`))

	assert.True(t, c.Cached("list").Present())
	assert.Equal(t, 0, f.count("list"))
}

func TestPrefetchAndPeek(t *testing.T) {
	f := newFakeFetcher()
	f.set("/att", `[]`, nil)
	f.release = make(chan struct{})
	c := New(f)

	c.Prefetch(context.Background(), "/att")
	r := c.Peek("/att")
	assert.True(t, r.Loading)
	assert.False(t, r.Present())

	close(f.release)
	c.Wait()

	r = c.Peek("/att")
	assert.False(t, r.Loading)
	assert.Equal(t, `[]`, string(r.Data))
	assert.Equal(t, 1, f.count("/att"))
}

func TestRefresh_RevalidatesInBackground(t *testing.T) {
	f := newFakeFetcher()
	f.set("/list", `"v1"`, nil)
	c := New(f)
	c.Get(context.Background(), "/list")

	f.set("/list", `"v2"`, nil)
	f.release = make(chan struct{})
	c.Refresh("/list")

	// Stale data stays readable while revalidating.
	r := c.Peek("/list")
	assert.Equal(t, `"v1"`, string(r.Data))
	assert.True(t, r.Loading)

	close(f.release)
	c.Wait()
	assert.Equal(t, `"v2"`, string(c.Cached("/list").Data))
}

func TestRefresh_SkipsUncachedPaths(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)

	c.Refresh("/never")
	c.Wait()
	assert.Equal(t, 0, f.count("/never"))
}

func TestRefresh_FailureKeepsStaleData(t *testing.T) {
	f := newFakeFetcher()
	f.set("/list", `"v1"`, nil)
	c := New(f)
	c.Get(context.Background(), "/list")

	f.set("/list", "", errors.New("offline"))
	c.Refresh("/list")
	c.Wait()

	r := c.Cached("/list")
	assert.Equal(t, `"v1"`, string(r.Data))
	assert.Error(t, r.Err)
}
