// Package trigger turns inbound file events into dispatches. Every event is
// dispatched on its own goroutine; invocations share nothing.
package trigger

import (
	"context"
	"io"
	"sync"

	"github.com/tendant/odm-dispatcher/internal/dispatch"
)

// Dispatcher runs one invocation to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Input) dispatch.Result
}

// Runner starts invocations in the background and tracks them for shutdown.
type Runner struct {
	ctx context.Context
	d   Dispatcher
	wg  sync.WaitGroup
	// OnResult, if set, receives every finished invocation.
	OnResult func(dispatch.Result)
}

// NewRunner runs invocations under ctx. Canceling ctx stops their waits
// but never the external jobs.
func NewRunner(ctx context.Context, d Dispatcher) *Runner {
	return &Runner{ctx: ctx, d: d}
}

// Go dispatches in on a new goroutine. body, if non-nil, is closed after
// the invocation ends.
func (r *Runner) Go(in dispatch.Input, body io.Closer) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if body != nil {
			defer body.Close()
		}
		res := r.d.Dispatch(r.ctx, in)
		if r.OnResult != nil {
			r.OnResult(res)
		}
	}()
}

// Wait blocks until every started invocation has returned.
func (r *Runner) Wait() { r.wg.Wait() }
