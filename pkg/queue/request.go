package queue

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/transport"
)

// request is the queue's record of one submitted request. All fields are
// owned by the scheduling goroutine once the request is enqueued.
type request struct {
	id              string
	method          model.Method
	url             string
	priority        model.Priority
	status          model.Status
	attempts        int
	failures        int
	budget          int
	body            []byte
	headers         http.Header
	responseType    model.ResponseType
	withCredentials bool
	onProgress      func(loaded, total int64)

	future *Future
	handle transport.Handle

	// abortedAttempt marks an attempt whose completion must be dropped:
	// the request was preempted and already returned to PENDING, so that
	// attempt's outcome no longer speaks for it.
	abortedAttempt int

	lastErr    error
	lastStatus int
	lastBytes  int
	enqueuedAt time.Time
}

// newRequest validates the submission options and builds the request.
func newRequest(method model.Method, url string, opts Options, defaultBudget int) (*request, error) {
	switch method {
	case model.MethodGet, model.MethodHead, model.MethodOptions,
		model.MethodPost, model.MethodPut, model.MethodPatch, model.MethodDelete:
	default:
		return nil, &model.InvalidOptionError{Option: "method", Value: method}
	}

	priority := opts.Priority
	if priority == 0 {
		priority = model.DefaultPriority
	}
	if !priority.Valid() {
		return nil, &model.InvalidOptionError{Option: "priority", Value: opts.Priority}
	}

	if !opts.ResponseType.Valid() {
		return nil, &model.InvalidOptionError{Option: "responseType", Value: opts.ResponseType}
	}

	budget := defaultBudget
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return nil, &model.InvalidOptionError{Option: "maxRetries", Value: *opts.MaxRetries}
		}
		budget = *opts.MaxRetries
	}

	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header, len(opts.Headers)+3)
	for name, values := range opts.Headers {
		for _, v := range values {
			headers.Add(name, v)
		}
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}
	if opts.ResponseType == model.ResponseTypeJSON && headers.Get("Accept") == "" {
		headers.Set("Accept", "application/json")
	}
	if opts.Auth != "" {
		headers.Set("Authorization", authorizationValue(opts.Auth))
	}

	return &request{
		id:              "req_" + uuid.New().String()[:8],
		method:          method,
		url:             url,
		priority:        priority,
		status:          model.StatusPending,
		budget:          budget,
		body:            body,
		headers:         headers,
		responseType:    opts.ResponseType,
		withCredentials: opts.WithCredentials,
		onProgress:      opts.OnProgress,
	}, nil
}

// encodeBody converts the submission body into wire bytes. Raw payloads
// pass through untouched; everything else is JSON-encoded.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	case json.RawMessage:
		return b, "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", &model.InvalidOptionError{Option: "body", Value: err.Error()}
		}
		return data, "application/json", nil
	}
}

// authorizationValue maps a credential string to an Authorization header
// value, defaulting bare tokens to the bearer scheme.
func authorizationValue(auth string) string {
	if strings.Contains(auth, " ") {
		return auth
	}
	return "Bearer " + auth
}

// abort cancels the request's in-flight attempt. Aborting a request with no
// attempt in flight is an invariant violation.
func (r *request) abort() error {
	if r.attempts == 0 || r.handle == nil {
		return model.ErrNeverSent
	}
	r.handle.Abort()
	r.handle = nil
	return nil
}

// info snapshots the request for hooks.
func (r *request) info() RequestInfo {
	info := RequestInfo{
		ID:         r.id,
		Method:     r.method,
		URL:        r.url,
		Priority:   r.priority,
		Status:     r.status,
		Attempts:   r.attempts,
		HTTPStatus: r.lastStatus,
		Bytes:      r.lastBytes,
		Err:        r.lastErr,
	}
	if !r.enqueuedAt.IsZero() {
		info.Duration = time.Since(r.enqueuedAt)
	}
	return info
}
