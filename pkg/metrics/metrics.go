// Package metrics exposes queue activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/queue"
)

// Collector translates queue lifecycle events into Prometheus metrics.
// It implements queue.Hook; register it with queue.WithHook. Hook methods
// run on the scheduling goroutine and only touch local state.
type Collector struct {
	registry *prometheus.Registry

	submitted  *prometheus.CounterVec
	dispatches prometheus.Counter
	retries    prometheus.Counter
	preempted  prometheus.Counter
	completed  prometheus.Counter
	failed     *prometheus.CounterVec

	duration      prometheus.Histogram
	bytesReceived prometheus.Counter

	queueDepth prometheus.Gauge
	inFlight   prometheus.Gauge

	// sending tracks which requests currently hold a dispatched attempt,
	// so the in-flight gauge stays exact across retries, preemptions and
	// shutdown settlements.
	mu      sync.Mutex
	sending map[string]struct{}
}

// NewCollector builds a collector registered on reg. A nil reg gets a
// fresh private registry, reachable through Registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: reg,
		sending:  make(map[string]struct{}),
	}

	c.submitted = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "requests_submitted_total",
		Help:      "Requests accepted into the queue, by priority.",
	}, []string{"priority"})

	c.dispatches = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "dispatches_total",
		Help:      "Attempts issued to the transport, including retries.",
	})

	c.retries = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "retries_total",
		Help:      "Failed attempts that were returned to the queue.",
	})

	c.preempted = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "preemptions_total",
		Help:      "In-flight attempts aborted to make room for higher priorities.",
	})

	c.completed = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "requests_completed_total",
		Help:      "Requests that settled with a decoded response.",
	})

	c.failed = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "requests_failed_total",
		Help:      "Requests that settled with an error, by failure kind.",
	}, []string{"reason"})

	c.duration = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "request_duration_seconds",
		Help:      "Time from enqueue to settlement.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	c.bytesReceived = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "response_bytes_total",
		Help:      "Response body bytes carried by settled requests.",
	})

	c.queueDepth = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Requests currently queued, in flight included.",
	})

	c.inFlight = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "fetchq",
		Subsystem: "queue",
		Name:      "inflight_requests",
		Help:      "Requests with an attempt currently in flight.",
	})

	return c
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// OnEnqueue implements queue.Hook.
func (c *Collector) OnEnqueue(info queue.RequestInfo) {
	c.submitted.WithLabelValues(info.Priority.String()).Inc()
	c.queueDepth.Inc()
}

// OnDispatch implements queue.Hook.
func (c *Collector) OnDispatch(info queue.RequestInfo) {
	c.dispatches.Inc()
	c.markSending(info.ID, true)
}

// OnRetry implements queue.Hook.
func (c *Collector) OnRetry(info queue.RequestInfo) {
	c.retries.Inc()
	c.markSending(info.ID, false)
}

// OnPreempt implements queue.Hook.
func (c *Collector) OnPreempt(info queue.RequestInfo) {
	c.preempted.Inc()
	c.markSending(info.ID, false)
}

// OnSettle implements queue.Hook.
func (c *Collector) OnSettle(info queue.RequestInfo) {
	c.queueDepth.Dec()
	c.markSending(info.ID, false)
	c.duration.Observe(info.Duration.Seconds())
	c.bytesReceived.Add(float64(info.Bytes))

	if info.Status == model.StatusDone {
		c.completed.Inc()
		return
	}
	c.failed.WithLabelValues(model.FailureKind(info.Err)).Inc()
}

func (c *Collector) markSending(id string, sending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sending {
		c.sending[id] = struct{}{}
	} else {
		delete(c.sending, id)
	}
	c.inFlight.Set(float64(len(c.sending)))
}
