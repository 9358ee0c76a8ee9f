package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/queue"
)

func TestCollector_CountsLifecycle(t *testing.T) {
	c := NewCollector(nil)

	info := queue.RequestInfo{
		ID:       "req_1",
		Method:   model.MethodGet,
		URL:      "http://api/items",
		Priority: model.PriorityHigh,
		Status:   model.StatusPending,
	}
	c.OnEnqueue(info)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.submitted.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueDepth))

	info.Status = model.StatusSending
	info.Attempts = 1
	c.OnDispatch(info)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))

	info.Status = model.StatusPending
	c.OnRetry(info)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retries))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))

	info.Status = model.StatusSending
	info.Attempts = 2
	c.OnDispatch(info)

	info.Status = model.StatusDone
	info.Bytes = 512
	info.Duration = 40 * time.Millisecond
	c.OnSettle(info)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 512.0, testutil.ToFloat64(c.bytesReceived))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_PreemptionTracking(t *testing.T) {
	c := NewCollector(nil)

	first := queue.RequestInfo{ID: "req_a", Priority: model.PriorityHigh, Status: model.StatusSending, Attempts: 1}
	second := queue.RequestInfo{ID: "req_b", Priority: model.PriorityHighest, Status: model.StatusSending, Attempts: 1}

	c.OnEnqueue(first)
	c.OnDispatch(first)
	c.OnEnqueue(second)
	c.OnDispatch(second)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inFlight))

	first.Status = model.StatusPending
	c.OnPreempt(first)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.preempted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueDepth))
}

func TestCollector_FailureReasons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "http status", err: &model.StatusError{Code: 503}, want: "http_status"},
		{name: "network", err: &model.TransportError{Reason: "connection reset"}, want: "network"},
		{name: "decode", err: &model.DecodeError{Type: model.ResponseTypeJSON, Err: errors.New("bad json")}, want: "decode"},
		{name: "queue closed", err: model.ErrQueueClosed, want: "queue_closed"},
		{name: "invalid option", err: &model.InvalidOptionError{Option: "method"}, want: "invalid_option"},
		{name: "anything else", err: errors.New("boom"), want: "other"},
		{name: "missing error", err: nil, want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(nil)
			c.OnSettle(queue.RequestInfo{
				ID:     "req_x",
				Status: model.StatusFailed,
				Err:    tt.err,
			})
			assert.Equal(t, 1.0, testutil.ToFloat64(c.failed.WithLabelValues(tt.want)))
		})
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.OnEnqueue(queue.RequestInfo{ID: "req_1", Priority: model.PriorityMedium})

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "fetchq_queue_requests_submitted_total")
	assert.Contains(t, rr.Body.String(), `priority="MEDIUM"`)
}
