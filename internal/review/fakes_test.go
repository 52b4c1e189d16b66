package review

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/mutation"
	"github.com/joescharf/rq/internal/notify"
	"github.com/joescharf/rq/internal/querycache"
)

// callLog records collaborator calls in order across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeCache struct {
	log    *callLog
	mu     sync.Mutex
	cached map[string]json.RawMessage
	remote map[string]json.RawMessage
	errs   map[string]error
	gets   map[string]int
}

func newFakeCache(log *callLog) *fakeCache {
	return &fakeCache{
		log:    log,
		cached: map[string]json.RawMessage{},
		remote: map[string]json.RawMessage{},
		errs:   map[string]error{},
		gets:   map[string]int{},
	}
}

func (c *fakeCache) Get(_ context.Context, path string) querycache.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets[path]++
	if err := c.errs[path]; err != nil {
		return querycache.Result{Err: err}
	}
	data := c.remote[path]
	c.cached[path] = data
	return querycache.Result{Data: data}
}

func (c *fakeCache) Cached(key string) querycache.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return querycache.Result{Data: c.cached[key]}
}

func (c *fakeCache) Prefetch(ctx context.Context, path string) { c.Get(ctx, path) }

func (c *fakeCache) Peek(path string) querycache.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[path]; err != nil {
		return querycache.Result{Err: err}
	}
	return querycache.Result{Data: c.cached[path]}
}

func (c *fakeCache) Refresh(paths ...string) {
	for _, p := range paths {
		c.log.add("refresh " + p)
	}
}

func (c *fakeCache) getCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[path]
}

type fakeMutator struct {
	log      *callLog
	requests []mutation.Request
	resp     json.RawMessage
	info     []models.ErrorInfo
	inFlight bool
}

func (m *fakeMutator) Trigger(_ context.Context, req mutation.Request, cb mutation.Callbacks) error {
	if m.inFlight {
		return mutation.ErrInFlight
	}
	m.requests = append(m.requests, req)
	m.log.add("mutate " + req.Method + " " + req.Path)
	if m.info != nil {
		cb.OnError(m.info)
		return errMutation
	}
	cb.OnSuccess(m.resp)
	return nil
}

func (m *fakeMutator) InFlight() bool { return m.inFlight }

type fakeRouter struct {
	log   *callLog
	paths []string
}

func (r *fakeRouter) Go(path string) {
	r.paths = append(r.paths, path)
	if r.log != nil {
		r.log.add("go " + path)
	}
}

func loggingNotifier(log *callLog, rec *notify.Recorder) notify.Notifier {
	return notify.NotifierFunc(func(n notify.Notification) {
		log.add("notify " + string(n.Type))
		rec.Notify(n)
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func summaries(ids ...int) []*models.SubmissionSummary {
	out := make([]*models.SubmissionSummary, len(ids))
	for i, id := range ids {
		out[i] = &models.SubmissionSummary{ID: id}
	}
	return out
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const errMutation = sentinel("mutation failed")
