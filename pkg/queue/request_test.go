package queue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/me/fetchq/pkg/model"
)

func TestNewRequest_Defaults(t *testing.T) {
	req, err := newRequest(model.MethodGet, "http://api/items", Options{}, 3)
	if err != nil {
		t.Fatalf("newRequest returned error: %v", err)
	}
	if !strings.HasPrefix(req.id, "req_") {
		t.Errorf("id = %q, want req_ prefix", req.id)
	}
	if req.priority != model.PriorityMedium {
		t.Errorf("priority = %s, want %s", req.priority, model.PriorityMedium)
	}
	if req.status != model.StatusPending {
		t.Errorf("status = %s, want %s", req.status, model.StatusPending)
	}
	if req.budget != 3 {
		t.Errorf("budget = %d, want 3", req.budget)
	}
	if req.responseType != model.ResponseTypeNone {
		t.Errorf("response type = %q, want none", req.responseType)
	}
	if req.attempts != 0 {
		t.Errorf("attempts = %d, want 0", req.attempts)
	}
}

func TestNewRequest_MaxRetriesOverridesDefault(t *testing.T) {
	five := 5
	req, err := newRequest(model.MethodGet, "http://api/items", Options{MaxRetries: &five}, 3)
	if err != nil {
		t.Fatalf("newRequest returned error: %v", err)
	}
	if req.budget != 5 {
		t.Errorf("budget = %d, want 5", req.budget)
	}
}

func TestNewRequest_Methods(t *testing.T) {
	valid := []model.Method{
		model.MethodGet, model.MethodHead, model.MethodOptions,
		model.MethodPost, model.MethodPut, model.MethodPatch, model.MethodDelete,
	}
	for _, m := range valid {
		if _, err := newRequest(m, "http://api/items", Options{}, 3); err != nil {
			t.Errorf("newRequest(%s) returned error: %v", m, err)
		}
	}

	var optErr *model.InvalidOptionError
	if _, err := newRequest(model.Method("TRACE"), "http://api/items", Options{}, 3); !errors.As(err, &optErr) {
		t.Errorf("newRequest(TRACE) error = %v, want InvalidOptionError", err)
	}
}

func TestNewRequest_BodyEncoding(t *testing.T) {
	tests := []struct {
		name            string
		body            any
		wantBody        string
		wantContentType string
	}{
		{name: "nil body", body: nil},
		{name: "raw bytes", body: []byte{0x01, 0x02}, wantBody: "\x01\x02"},
		{name: "plain string", body: "plain", wantBody: "plain"},
		{name: "raw json", body: json.RawMessage(`{"a":1}`), wantBody: `{"a":1}`, wantContentType: "application/json"},
		{name: "marshalled value", body: map[string]int{"a": 1}, wantBody: `{"a":1}`, wantContentType: "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := newRequest(model.MethodPost, "http://api/items", Options{Body: tt.body}, 3)
			if err != nil {
				t.Fatalf("newRequest returned error: %v", err)
			}
			if got := string(req.body); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if got := req.headers.Get("Content-Type"); got != tt.wantContentType {
				t.Errorf("content type = %q, want %q", got, tt.wantContentType)
			}
		})
	}

	var optErr *model.InvalidOptionError
	if _, err := newRequest(model.MethodPost, "http://api/items", Options{Body: make(chan int)}, 3); !errors.As(err, &optErr) {
		t.Fatalf("unencodable body error = %v, want InvalidOptionError", err)
	}
	if optErr.Option != "body" {
		t.Errorf("option = %q, want %q", optErr.Option, "body")
	}
}

func TestNewRequest_BodyContentTypeNotOverridden(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/vnd.custom+json")
	req, err := newRequest(model.MethodPost, "http://api/items", Options{
		Body:    map[string]int{"a": 1},
		Headers: headers,
	}, 3)
	if err != nil {
		t.Fatalf("newRequest returned error: %v", err)
	}
	if got, want := req.headers.Get("Content-Type"), "application/vnd.custom+json"; got != want {
		t.Errorf("content type = %q, want %q", got, want)
	}
}

func TestNewRequest_Authorization(t *testing.T) {
	tests := []struct {
		name string
		auth string
		want string
	}{
		{name: "bare token gets bearer scheme", auth: "tok123", want: "Bearer tok123"},
		{name: "explicit scheme kept", auth: "Basic dXNlcjpwYXNz", want: "Basic dXNlcjpwYXNz"},
		{name: "empty leaves header unset", auth: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := newRequest(model.MethodGet, "http://api/items", Options{Auth: tt.auth}, 3)
			if err != nil {
				t.Fatalf("newRequest returned error: %v", err)
			}
			if got := req.headers.Get("Authorization"); got != tt.want {
				t.Errorf("authorization = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRequest_AcceptForJSON(t *testing.T) {
	req, err := newRequest(model.MethodGet, "http://api/items", Options{ResponseType: model.ResponseTypeJSON}, 3)
	if err != nil {
		t.Fatalf("newRequest returned error: %v", err)
	}
	if got, want := req.headers.Get("Accept"), "application/json"; got != want {
		t.Errorf("accept = %q, want %q", got, want)
	}

	headers := http.Header{}
	headers.Set("Accept", "application/vnd.custom+json")
	req, err = newRequest(model.MethodGet, "http://api/items", Options{
		ResponseType: model.ResponseTypeJSON,
		Headers:      headers,
	}, 3)
	if err != nil {
		t.Fatalf("newRequest returned error: %v", err)
	}
	if got, want := req.headers.Get("Accept"), "application/vnd.custom+json"; got != want {
		t.Errorf("accept = %q, want %q", got, want)
	}
}

// Aborting a request that never dispatched reports ErrNeverSent.
func TestRequest_AbortNeverSent(t *testing.T) {
	req, err := newRequest(model.MethodGet, "http://api/items", Options{}, 3)
	if err != nil {
		t.Fatalf("newRequest returned error: %v", err)
	}
	if err := req.abort(); !errors.Is(err, model.ErrNeverSent) {
		t.Errorf("abort error = %v, want ErrNeverSent", err)
	}
}
