package journal

import (
	"context"
	"sync"
	"time"

	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/queue"
)

// Recorder buffers queue settlements for one run. It implements queue.Hook;
// hooks run on the scheduling goroutine, so the recorder only appends to a
// slice there and leaves the SQL write to Flush.
type Recorder struct {
	journal *Journal
	runID   string

	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns a recorder that tags settlements with runID.
func NewRecorder(j *Journal, runID string) *Recorder {
	return &Recorder{journal: j, runID: runID}
}

func (r *Recorder) OnEnqueue(queue.RequestInfo)  {}
func (r *Recorder) OnDispatch(queue.RequestInfo) {}
func (r *Recorder) OnRetry(queue.RequestInfo)    {}
func (r *Recorder) OnPreempt(queue.RequestInfo)  {}

// OnSettle implements queue.Hook.
func (r *Recorder) OnSettle(info queue.RequestInfo) {
	e := Entry{
		RunID:      r.runID,
		RequestID:  info.ID,
		Method:     info.Method.String(),
		URL:        info.URL,
		Priority:   info.Priority.String(),
		Status:     info.Status.String(),
		Attempts:   info.Attempts,
		HTTPStatus: info.HTTPStatus,
		Bytes:      info.Bytes,
		Duration:   info.Duration,
		SettledAt:  time.Now().UTC(),
	}
	if info.Err != nil {
		e.ErrorKind = model.FailureKind(info.Err)
		e.Error = info.Err.Error()
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Flush writes the buffered settlements to the journal and clears the
// buffer. Call it after the queue has drained; settlements recorded during
// a flush are kept for the next one.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	return r.journal.Record(ctx, entries...)
}
