package queue

import (
	"net/http"

	"github.com/me/fetchq/pkg/model"
)

// Options configures a single request submission. The zero value submits
// with MEDIUM priority, no body, and the response payload discarded.
type Options struct {
	// Priority orders the request relative to others in the queue.
	// Defaults to MEDIUM.
	Priority model.Priority

	// ResponseType selects how a successful payload is decoded before the
	// future settles. Defaults to none: the payload is discarded and the
	// response carries only status and headers.
	ResponseType model.ResponseType

	// Body is the request payload: nil, []byte, string or json.RawMessage
	// are sent as-is; any other value is JSON-encoded and sent as
	// application/json. The queue keeps the payload for the lifetime of
	// the request so it can be resent on retry.
	Body any

	// Headers are added to every attempt of the request.
	Headers http.Header

	// Auth populates the Authorization header. A bare token is sent as
	// "Bearer <token>"; a value that already carries a scheme ("Basic
	// dXNlcjpwdw==") is sent verbatim.
	Auth string

	// WithCredentials attaches ambient credentials, such as cookies the
	// transport has stored, to every attempt.
	WithCredentials bool

	// MaxRetries overrides the queue's default attempt budget for this
	// request. The budget counts total attempts, not re-attempts.
	MaxRetries *int

	// OnProgress is invoked as response bytes arrive. It runs on a
	// transport goroutine, concurrently with the submitting goroutine.
	OnProgress func(loaded, total int64)
}
