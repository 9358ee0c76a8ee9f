package queue

import (
	"time"

	"github.com/me/fetchq/pkg/model"
)

// RequestInfo is a point-in-time snapshot of one request, handed to hooks.
type RequestInfo struct {
	ID       string
	Method   model.Method
	URL      string
	Priority model.Priority
	Status   model.Status
	Attempts int

	// HTTPStatus is the last status code observed for the request, 0 when
	// no attempt has produced one.
	HTTPStatus int
	// Bytes is the size of the last observed response payload.
	Bytes int
	// Duration is the time since the request was enqueued. Meaningful on
	// settle events.
	Duration time.Duration
	// Err is the most recent failure observed for the request. On settle
	// events of failed requests it is the terminal error.
	Err error
}

// Hook observes request lifecycle events. Hooks run on the scheduling
// goroutine: implementations must return quickly and must not call back
// into the queue.
type Hook interface {
	// OnEnqueue fires when a request is inserted into the queue.
	OnEnqueue(info RequestInfo)
	// OnDispatch fires when an attempt is issued.
	OnDispatch(info RequestInfo)
	// OnRetry fires when a failed attempt returns the request to the
	// queue with remaining budget.
	OnRetry(info RequestInfo)
	// OnPreempt fires when an in-flight request is aborted to free a
	// dispatch slot.
	OnPreempt(info RequestInfo)
	// OnSettle fires exactly once per request, when it reaches DONE or
	// FAILED.
	OnSettle(info RequestInfo)
}

type nopHook struct{}

func (nopHook) OnEnqueue(RequestInfo)  {}
func (nopHook) OnDispatch(RequestInfo) {}
func (nopHook) OnRetry(RequestInfo)    {}
func (nopHook) OnPreempt(RequestInfo)  {}
func (nopHook) OnSettle(RequestInfo)   {}

// hooks fans events out to every registered hook in order.
type hooks []Hook

func (hs hooks) OnEnqueue(info RequestInfo) {
	for _, h := range hs {
		h.OnEnqueue(info)
	}
}

func (hs hooks) OnDispatch(info RequestInfo) {
	for _, h := range hs {
		h.OnDispatch(info)
	}
}

func (hs hooks) OnRetry(info RequestInfo) {
	for _, h := range hs {
		h.OnRetry(info)
	}
}

func (hs hooks) OnPreempt(info RequestInfo) {
	for _, h := range hs {
		h.OnPreempt(info)
	}
}

func (hs hooks) OnSettle(info RequestInfo) {
	for _, h := range hs {
		h.OnSettle(info)
	}
}
