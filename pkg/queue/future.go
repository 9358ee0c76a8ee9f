package queue

import (
	"context"
	"sync"

	"github.com/me/fetchq/pkg/model"
)

// Future is the one-shot outcome of a submitted request. It settles exactly
// once, when the request reaches DONE or FAILED; retries and preemptions
// along the way are invisible to the holder.
type Future struct {
	once sync.Once
	done chan struct{}
	resp *model.Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve settles the future successfully. Later settlements are no-ops.
func (f *Future) resolve(resp *model.Response) {
	f.once.Do(func() {
		f.resp = resp
		close(f.done)
	})
}

// reject settles the future with a terminal error. Later settlements are
// no-ops.
func (f *Future) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled response or terminal error. Before the future
// settles it returns nil, nil.
func (f *Future) Result() (*model.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	default:
		return nil, nil
	}
}

// Wait blocks until the future settles or ctx ends. A context error does
// not settle the future; the request stays queued.
func (f *Future) Wait(ctx context.Context) (*model.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
