package model

import (
	"fmt"
	"strings"
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
)

// String returns the string representation of the method.
func (m Method) String() string {
	return string(m)
}

// Idempotent returns true if an in-flight attempt with this method may be
// aborted and safely reissued later. Only GET, HEAD and OPTIONS qualify;
// the queue never preempts the other methods even when DELETE or PUT are
// idempotent in the protocol sense, because their attempt may already have
// produced a side effect on the origin.
func (m Method) Idempotent() bool {
	switch m {
	case MethodGet, MethodHead, MethodOptions:
		return true
	}
	return false
}

// ParseMethod converts a case-insensitive method name to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GET":
		return MethodGet, nil
	case "HEAD":
		return MethodHead, nil
	case "OPTIONS":
		return MethodOptions, nil
	case "POST":
		return MethodPost, nil
	case "PUT":
		return MethodPut, nil
	case "PATCH":
		return MethodPatch, nil
	case "DELETE":
		return MethodDelete, nil
	}
	return "", fmt.Errorf("unknown method %q", s)
}
