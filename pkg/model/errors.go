package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoTransport is returned when a queue is constructed without a
	// transport to dispatch requests on.
	ErrNoTransport = errors.New("no transport configured")
	// ErrQueueClosed is returned when a request is submitted to a queue
	// that has been closed.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrNotQueued is returned when removal is requested for a request
	// the queue does not hold.
	ErrNotQueued = errors.New("request is not queued")
	// ErrNeverSent is returned when an abort is requested for a request
	// that has no attempt in flight.
	ErrNeverSent = errors.New("request was never sent")
)

// InvalidOptionError is returned when a request is submitted with an
// unknown option or an out-of-range option value.
type InvalidOptionError struct {
	Option string
	Value  any
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option %s: %v", e.Option, e.Value)
}

// StatusError reports a response with a non-success HTTP status. Attempts
// that end this way are retryable.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d %s", e.Code, http.StatusText(e.Code))
}

// TransportError reports a failure below the HTTP layer, such as a refused
// connection or an interrupted body read. Attempts that end this way are
// retryable.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transport failure (%s)", e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response that arrived with a success status but a
// body that could not be decoded as the requested response type. Not
// retryable: the origin answered, the payload is simply not what the
// caller asked for.
type DecodeError struct {
	Type ResponseType
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode response as %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Retryable returns true if a failed attempt with this error may be retried.
func Retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// FailureKind buckets an error into a short label, used for metric label
// values and journal rows.
func FailureKind(err error) string {
	var statusErr *StatusError
	var transportErr *TransportError
	var decodeErr *DecodeError
	var optionErr *InvalidOptionError
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, ErrQueueClosed):
		return "queue_closed"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &transportErr):
		return "network"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &optionErr):
		return "invalid_option"
	default:
		return "other"
	}
}
