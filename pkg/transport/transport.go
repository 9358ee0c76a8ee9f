// Package transport carries single request attempts over the wire on
// behalf of the queue. A Transport opens one Handle per attempt; the
// handle is sent at most once and may be aborted from another goroutine
// while the send is in flight.
package transport

import (
	"context"
	"net/http"

	"github.com/me/fetchq/pkg/model"
)

// Transport opens attempt handles. Implementations must be safe for
// concurrent use; the handles they return are owned by a single attempt.
type Transport interface {
	// Open prepares an attempt for the given method and URL. It performs
	// no network activity. withCredentials asks the transport to attach
	// ambient credentials such as stored cookies to the attempt.
	Open(method model.Method, url string, withCredentials bool) (Handle, error)
}

// Handle is one dispatchable attempt.
type Handle interface {
	// Send performs the attempt and blocks until it settles. It is
	// called at most once per handle. Cancelling ctx or calling Abort
	// makes Send return promptly with an aborted outcome. progress, if
	// non-nil, is invoked as response bytes arrive; total is the
	// Content-Length reported by the origin, or -1 when unknown.
	Send(ctx context.Context, body []byte, headers http.Header, progress func(loaded, total int64)) Outcome

	// Abort interrupts an in-flight Send. Safe to call from any
	// goroutine, at any time, any number of times.
	Abort()
}

// Kind classifies how an attempt settled.
type Kind string

const (
	// KindSuccess means the origin answered with a success status.
	KindSuccess Kind = "success"
	// KindHTTPError means the origin answered with a non-success status.
	KindHTTPError Kind = "http_error"
	// KindNetworkError means the attempt failed below the HTTP layer.
	KindNetworkError Kind = "network_error"
	// KindAborted means the attempt was interrupted by Abort or by
	// context cancellation. No status was observed on the caller's
	// behalf even if the origin answered while the abort raced it.
	KindAborted Kind = "aborted"
)

// Outcome is the terminal report of one attempt. Status is 0 unless the
// origin answered; Err is populated for KindNetworkError.
type Outcome struct {
	Kind   Kind
	Status int
	Header http.Header
	Body   []byte
	Err    error
}

// SuccessStatus reports whether an HTTP status code settles an attempt
// successfully.
func SuccessStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return true
	}
	return false
}
