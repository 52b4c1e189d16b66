// Package mutation runs write requests against the API one at a time and
// reports their outcome through callbacks.
package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/joescharf/rq/internal/client"
	"github.com/joescharf/rq/internal/models"
)

// ErrInFlight is returned by Trigger while another request is running.
var ErrInFlight = errors.New("mutation already in flight")

// Doer performs one request. *client.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// Request describes one write.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Callbacks receive the outcome. Either may be nil.
type Callbacks struct {
	OnSuccess func(data json.RawMessage)
	OnError   func(info []models.ErrorInfo)
}

// Executor admits one request at a time.
type Executor struct {
	doer     Doer
	inFlight atomic.Bool
}

// New creates an executor that sends requests through d.
func New(d Doer) *Executor {
	return &Executor{doer: d}
}

// InFlight reports whether a request is running.
func (e *Executor) InFlight() bool {
	return e.inFlight.Load()
}

// Trigger sends req and runs exactly one callback before returning. The
// in-flight flag stays set until the callback has returned. Request failures
// go to OnError and are also returned.
func (e *Executor) Trigger(ctx context.Context, req Request, cb Callbacks) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer e.inFlight.Store(false)

	method := req.Method
	if method == "" {
		method = http.MethodPut
	}

	data, err := e.doer.Do(ctx, method, req.Path, req.Body)
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(client.InfoOf(err))
		}
		return fmt.Errorf("mutate %s: %w", req.Path, err)
	}

	if cb.OnSuccess != nil {
		cb.OnSuccess(data)
	}
	return nil
}
