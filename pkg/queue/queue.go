// Package queue implements a priority-ordered request queue with a
// positional dispatch window, preemption of in-flight work and a
// delay-free retry loop.
//
// Requests are held in descending priority order; arrival order breaks
// ties. Only the first Concurrency positions of the queue are eligible
// for dispatch. A newly arrived higher-priority request can push an
// in-flight request beyond that window; if the pushed request is
// idempotent and not HIGHEST priority, it is aborted and returned to the
// queue, without consuming retry budget, to free its slot.
//
// All queue state is owned by one scheduling goroutine fed through a
// mailbox, so no mutation ever races another. Submission never blocks.
package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/transport"
)

const (
	// DefaultConcurrency is the dispatch window size used when the
	// configuration leaves it unset.
	DefaultConcurrency = 6
	// DefaultRetries is the total attempt budget used when neither the
	// configuration nor the request sets one.
	DefaultRetries = 3
)

// Config holds queue configuration.
type Config struct {
	// Concurrency is the size of the dispatch window: the number of
	// leading queue positions eligible to be in flight at once. Zero
	// means DefaultConcurrency.
	Concurrency int
	// Retries is the default total attempt budget per request,
	// overridden per request by Options.MaxRetries. Zero means
	// DefaultRetries.
	Retries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Concurrency: DefaultConcurrency, Retries: DefaultRetries}
}

// Option configures optional Queue dependencies.
type Option func(*Queue)

// WithHook registers a lifecycle hook. May be given more than once; hooks
// fire in registration order.
func WithHook(h Hook) Option {
	return func(q *Queue) {
		q.hooks = append(q.hooks, h)
	}
}

type msgKind int

const (
	msgSubmit msgKind = iota
	msgComplete
)

type message struct {
	kind    msgKind
	req     *request
	attempt int
	outcome transport.Outcome
}

// Queue schedules requests over a Transport.
type Queue struct {
	transport transport.Transport
	cfg       Config
	logger    *slog.Logger
	hooks     hooks

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	inbox  []message
	closed bool
	wake   chan struct{}
	done   chan struct{}

	// items is the priority-ordered queue. Owned by the scheduling
	// goroutine; never touched elsewhere.
	items []*request

	depth    atomic.Int64
	inFlight atomic.Int64
}

// New creates a queue dispatching on t and starts its scheduling
// goroutine. Release it with Close.
func New(t transport.Transport, cfg Config, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if t == nil {
		return nil, model.ErrNoTransport
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Concurrency < 1 {
		return nil, &model.InvalidOptionError{Option: "concurrency", Value: cfg.Concurrency}
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Retries < 0 {
		return nil, &model.InvalidOptionError{Option: "retries", Value: cfg.Retries}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		transport: t,
		cfg:       cfg,
		logger:    logger.With("component", "queue"),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q, nil
}

// Do submits a request and returns its future immediately; it never
// blocks. Invalid options reject the future before any network attempt.
func (q *Queue) Do(method model.Method, url string, opts Options) *Future {
	f := newFuture()
	req, err := newRequest(method, url, opts, q.cfg.Retries)
	if err != nil {
		f.reject(err)
		return f
	}
	req.future = f
	if !q.post(message{kind: msgSubmit, req: req}) {
		f.reject(model.ErrQueueClosed)
	}
	return f
}

// Get submits a GET request.
func (q *Queue) Get(url string, opts Options) *Future {
	return q.Do(model.MethodGet, url, opts)
}

// Head submits a HEAD request.
func (q *Queue) Head(url string, opts Options) *Future {
	return q.Do(model.MethodHead, url, opts)
}

// Options submits an OPTIONS request.
func (q *Queue) Options(url string, opts Options) *Future {
	return q.Do(model.MethodOptions, url, opts)
}

// Post submits a POST request.
func (q *Queue) Post(url string, opts Options) *Future {
	return q.Do(model.MethodPost, url, opts)
}

// Put submits a PUT request.
func (q *Queue) Put(url string, opts Options) *Future {
	return q.Do(model.MethodPut, url, opts)
}

// Patch submits a PATCH request.
func (q *Queue) Patch(url string, opts Options) *Future {
	return q.Do(model.MethodPatch, url, opts)
}

// Delete submits a DELETE request.
func (q *Queue) Delete(url string, opts Options) *Future {
	return q.Do(model.MethodDelete, url, opts)
}

// Len reports the number of queued, non-terminal requests, as of the last
// completed scheduling pass.
func (q *Queue) Len() int {
	return int(q.depth.Load())
}

// InFlight reports the number of requests with an attempt in flight, as
// of the last completed scheduling pass.
func (q *Queue) InFlight() int {
	return int(q.inFlight.Load())
}

// Close shuts the queue down. In-flight attempts are aborted and every
// unsettled future rejects with ErrQueueClosed. Close blocks until the
// scheduling goroutine has stopped; calling it again is a no-op.
func (q *Queue) Close() error {
	q.mu.Lock()
	first := !q.closed
	q.closed = true
	q.mu.Unlock()

	if first {
		q.cancel()
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
	return nil
}

// post delivers a message to the scheduling goroutine. It reports false
// when the queue is closed.
func (q *Queue) post(m message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.inbox = append(q.inbox, m)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// run is the scheduling goroutine: it drains the mailbox in batches,
// applies each message, then runs a single update pass for the batch.
func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.inbox) == 0 && !q.closed {
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		batch := q.inbox
		q.inbox = nil
		closed := q.closed
		q.mu.Unlock()

		for _, m := range batch {
			switch m.kind {
			case msgSubmit:
				q.insert(m.req)
			case msgComplete:
				q.complete(m.req, m.attempt, m.outcome)
			}
		}
		if closed {
			q.shutdown()
			return
		}
		q.update()
		q.refreshGauges()
	}
}

// insert places req at its priority position: before the first entry of
// strictly lower priority, after every entry of equal or higher priority,
// so equal priorities keep arrival order.
func (q *Queue) insert(req *request) {
	req.enqueuedAt = time.Now()
	idx := len(q.items)
	for i, existing := range q.items {
		if existing.priority < req.priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = req

	q.logger.Debug("request enqueued",
		"request_id", req.id,
		"method", req.method,
		"url", req.url,
		"priority", req.priority,
		"position", idx)
	q.hooks.OnEnqueue(req.info())
}

// update runs one scheduling pass. Every dispatch the window allows
// happens before any preemption: an abort changes what the window holds,
// and that new arrangement is only acted on by the next pass.
func (q *Queue) update() {
	q.dispatchEligible()
	q.preemptOverflowing()
}

// dispatchEligible repeatedly dispatches the first PENDING request inside
// the window until none remains.
func (q *Queue) dispatchEligible() {
	for {
		req := q.nextPending()
		if req == nil {
			return
		}
		q.dispatch(req)
	}
}

// nextPending returns the first PENDING request within the dispatch
// window. The queue is priority-ordered, so the first match is also the
// highest-priority candidate.
func (q *Queue) nextPending() *request {
	window := min(q.cfg.Concurrency, len(q.items))
	for _, req := range q.items[:window] {
		if req.status == model.StatusPending {
			return req
		}
	}
	return nil
}

// preemptOverflowing repeatedly aborts in-flight requests that were
// pushed beyond the window, returning them to PENDING, until none is
// eligible.
func (q *Queue) preemptOverflowing() {
	for {
		req := q.nextOverflowing()
		if req == nil {
			return
		}
		q.preempt(req)
	}
}

// nextOverflowing returns the first request beyond the window that is in
// flight and safe to take back: not HIGHEST priority, method idempotent.
// Non-idempotent attempts are never aborted; the origin may already have
// acted on them.
func (q *Queue) nextOverflowing() *request {
	if len(q.items) <= q.cfg.Concurrency {
		return nil
	}
	for _, req := range q.items[q.cfg.Concurrency:] {
		if req.status == model.StatusSending &&
			req.priority != model.PriorityHighest &&
			req.method.Idempotent() {
			return req
		}
	}
	return nil
}

// dispatch issues one attempt for req. The attempt counter increments at
// issue time, not at completion.
func (q *Queue) dispatch(req *request) {
	q.transition(req, model.StatusSending)
	req.attempts++
	attempt := req.attempts

	q.logger.Debug("request dispatched",
		"request_id", req.id,
		"method", req.method,
		"url", req.url,
		"attempt", attempt,
		"budget", req.budget)
	q.hooks.OnDispatch(req.info())

	handle, err := q.transport.Open(req.method, req.url, req.withCredentials)
	if err != nil {
		q.complete(req, attempt, transport.Outcome{
			Kind: transport.KindNetworkError,
			Err:  &model.TransportError{Reason: "open", Err: err},
		})
		return
	}
	req.handle = handle

	body, headers, progress := req.body, req.headers, req.onProgress
	go func() {
		outcome := handle.Send(q.ctx, body, headers, progress)
		q.post(message{kind: msgComplete, req: req, attempt: attempt, outcome: outcome})
	}()
}

// preempt aborts req's in-flight attempt and returns it to PENDING in
// place. The aborted attempt number is recorded so its completion is
// dropped instead of counting as a failure; the attempt counter keeps the
// value the in-flight attempt consumed.
func (q *Queue) preempt(req *request) {
	if err := req.abort(); err != nil {
		q.logger.Error("queue invariant violated",
			"request_id", req.id,
			"error", err)
	}
	req.abortedAttempt = req.attempts
	q.transition(req, model.StatusPending)

	q.logger.Debug("request preempted",
		"request_id", req.id,
		"priority", req.priority,
		"attempt", req.attempts)
	q.hooks.OnPreempt(req.info())
}

// complete applies one attempt outcome. Outcomes of attempts the queue
// abandoned are dropped without touching the request.
func (q *Queue) complete(req *request, attempt int, outcome transport.Outcome) {
	if attempt == req.abortedAttempt {
		req.abortedAttempt = 0
		q.logger.Debug("dropping outcome of aborted attempt",
			"request_id", req.id,
			"attempt", attempt,
			"kind", outcome.Kind)
		return
	}
	if req.status != model.StatusSending || attempt != req.attempts {
		return
	}
	req.handle = nil
	req.lastStatus = outcome.Status
	req.lastBytes = len(outcome.Body)

	switch outcome.Kind {
	case transport.KindSuccess:
		resp, err := transport.Decode(req.responseType, outcome.Status, outcome.Header, outcome.Body)
		if err != nil {
			// Not retryable: resending would reproduce the same payload.
			q.fail(req, err)
			return
		}
		q.succeed(req, resp)

	case transport.KindHTTPError:
		q.attemptFailed(req, &model.StatusError{Code: outcome.Status, Body: outcome.Body})

	case transport.KindNetworkError:
		err := outcome.Err
		if err == nil {
			err = &model.TransportError{Reason: "unknown"}
		}
		q.attemptFailed(req, err)

	case transport.KindAborted:
		// Cancelled outside the preemption path (shutdown in progress).
		// Back to the queue without consuming budget.
		q.transition(req, model.StatusPending)
	}
}

// attemptFailed consumes one unit of retry budget and either requeues the
// request in place or fails it terminally. Only genuine failures reach
// this point, so preempted attempts never count against the budget.
func (q *Queue) attemptFailed(req *request, err error) {
	req.lastErr = err
	req.failures++
	if req.failures >= req.budget {
		q.fail(req, err)
		return
	}
	q.transition(req, model.StatusPending)
	q.logger.Debug("attempt failed, retrying",
		"request_id", req.id,
		"attempt", req.attempts,
		"failures", req.failures,
		"budget", req.budget,
		"error", err)
	q.hooks.OnRetry(req.info())
}

// succeed settles req as DONE and removes it from the queue.
func (q *Queue) succeed(req *request, resp *model.Response) {
	q.transition(req, model.StatusDone)
	if err := q.dequeue(req); err != nil {
		q.logger.Error("queue invariant violated",
			"request_id", req.id,
			"error", err)
	}
	q.hooks.OnSettle(req.info())
	req.future.resolve(resp)
	q.logger.Info("request done",
		"request_id", req.id,
		"method", req.method,
		"url", req.url,
		"status", resp.StatusCode,
		"attempts", req.attempts)
}

// fail settles req as FAILED and removes it from the queue.
func (q *Queue) fail(req *request, err error) {
	req.lastErr = err
	q.transition(req, model.StatusFailed)
	if dqErr := q.dequeue(req); dqErr != nil {
		q.logger.Error("queue invariant violated",
			"request_id", req.id,
			"error", dqErr)
	}
	q.hooks.OnSettle(req.info())
	req.future.reject(err)
	q.logger.Info("request failed",
		"request_id", req.id,
		"method", req.method,
		"url", req.url,
		"attempts", req.attempts,
		"error", err)
}

// dequeue removes req from the queue. Removing a request that is not
// present is an invariant violation.
func (q *Queue) dequeue(req *request) error {
	for i, existing := range q.items {
		if existing == req {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return model.ErrNotQueued
}

// transition moves req to next, logging an invariant violation if the
// status machine forbids the move. The queue's call sites never violate
// it; the check is a tripwire.
func (q *Queue) transition(req *request, next model.Status) {
	if !req.status.CanTransitionTo(next) {
		q.logger.Error("invalid status transition",
			"request_id", req.id,
			"from", req.status,
			"to", next)
	}
	req.status = next
}

// shutdown aborts whatever is in flight and rejects every remaining
// future. Teardown does not go through the status machine.
func (q *Queue) shutdown() {
	for _, req := range q.items {
		if req.status == model.StatusSending && req.handle != nil {
			req.handle.Abort()
			req.handle = nil
		}
		req.status = model.StatusFailed
		req.lastErr = model.ErrQueueClosed
		q.hooks.OnSettle(req.info())
		req.future.reject(model.ErrQueueClosed)
	}
	q.items = nil
	q.refreshGauges()
	q.logger.Info("queue closed")
}

// refreshGauges publishes queue depth and in-flight count for Len and
// InFlight.
func (q *Queue) refreshGauges() {
	sending := 0
	for _, req := range q.items {
		if req.status == model.StatusSending {
			sending++
		}
	}
	q.depth.Store(int64(len(q.items)))
	q.inFlight.Store(int64(sending))
}
