package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"status error", &StatusError{Code: 503}, true},
		{"transport error", &TransportError{Reason: "connection refused"}, true},
		{"wrapped transport error", fmt.Errorf("attempt 2: %w", &TransportError{Reason: "timeout"}), true},
		{"decode error", &DecodeError{Type: ResponseTypeJSON, Err: errors.New("unexpected end of input")}, false},
		{"not queued", ErrNotQueued, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.retryable {
			t.Errorf("%s: Retryable() = %v, want %v", tt.name, got, tt.retryable)
		}
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status error", &StatusError{Code: 503}, "http_status"},
		{"transport error", &TransportError{Reason: "dial"}, "network"},
		{"wrapped status error", fmt.Errorf("final: %w", &StatusError{Code: 500}), "http_status"},
		{"decode error", &DecodeError{Type: ResponseTypeJSON, Err: errors.New("bad json")}, "decode"},
		{"invalid option", &InvalidOptionError{Option: "priority"}, "invalid_option"},
		{"queue closed", ErrQueueClosed, "queue_closed"},
		{"plain error", errors.New("boom"), "other"},
		{"nil", nil, "unknown"},
	}
	for _, tt := range tests {
		if got := FailureKind(tt.err); got != tt.want {
			t.Errorf("%s: FailureKind() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Code: 404, Body: []byte("gone")}
	want := "unexpected http status 404 Not Found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := &TransportError{Reason: "read", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the underlying cause")
	}
	want := "transport failure (read): connection reset by peer"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDecodeError_Unwrap(t *testing.T) {
	cause := errors.New("invalid character '<'")
	err := &DecodeError{Type: ResponseTypeJSON, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the underlying cause")
	}
	if Retryable(err) {
		t.Error("decode errors must not be retryable")
	}
}

func TestInvalidOptionError_Message(t *testing.T) {
	err := &InvalidOptionError{Option: "maxRetries", Value: -1}
	want := "invalid option maxRetries: -1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
