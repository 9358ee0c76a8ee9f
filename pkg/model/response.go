package model

import (
	"image"
	"net/http"
)

// Response is the decoded result of a completed request. Body always holds
// the raw payload as received (empty for ResponseTypeNone); exactly one of
// the typed fields is populated according to Type.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Type       ResponseType

	Text  string      // ResponseTypeText
	JSON  any         // ResponseTypeJSON
	Blob  *Blob       // ResponseTypeBlob
	Image image.Image // ResponseTypeImage
}

// ContentType returns the Content-Type header reported by the origin.
func (r *Response) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// Blob couples response bytes with their declared content type.
type Blob struct {
	ContentType string
	Data        []byte
}

// Size returns the number of bytes in the blob.
func (b *Blob) Size() int {
	return len(b.Data)
}
