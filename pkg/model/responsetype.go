package model

import "fmt"

// ResponseType selects how a successful response body is decoded before
// the request settles.
type ResponseType string

const (
	// ResponseTypeNone discards the body; the response carries only the
	// status code and headers.
	ResponseTypeNone ResponseType = ""
	// ResponseTypeText decodes the body as a UTF-8 string.
	ResponseTypeText ResponseType = "text"
	// ResponseTypeJSON unmarshals the body as JSON.
	ResponseTypeJSON ResponseType = "json"
	// ResponseTypeBuffer returns the raw body bytes.
	ResponseTypeBuffer ResponseType = "buffer"
	// ResponseTypeBlob returns the body bytes together with the
	// Content-Type reported by the origin.
	ResponseTypeBlob ResponseType = "blob"
	// ResponseTypeImage decodes the body as an image.
	ResponseTypeImage ResponseType = "image"
)

// String returns the string representation of the response type.
func (rt ResponseType) String() string {
	if rt == ResponseTypeNone {
		return "none"
	}
	return string(rt)
}

// Valid returns true for the defined response types.
func (rt ResponseType) Valid() bool {
	switch rt {
	case ResponseTypeNone, ResponseTypeText, ResponseTypeJSON,
		ResponseTypeBuffer, ResponseTypeBlob, ResponseTypeImage:
		return true
	}
	return false
}

// ParseResponseType converts a response type name to a ResponseType.
func ParseResponseType(s string) (ResponseType, error) {
	switch s {
	case "", "none":
		return ResponseTypeNone, nil
	case "text":
		return ResponseTypeText, nil
	case "json":
		return ResponseTypeJSON, nil
	case "buffer":
		return ResponseTypeBuffer, nil
	case "blob":
		return ResponseTypeBlob, nil
	case "image":
		return ResponseTypeImage, nil
	}
	return "", fmt.Errorf("unknown response type %q", s)
}
