package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"unicode/utf8"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/me/fetchq/pkg/model"
)

// Decode builds the settled response for a successful attempt, decoding the
// body according to the requested response type. A body that cannot be
// decoded yields a *model.DecodeError, which is terminal for the request.
func Decode(rt model.ResponseType, status int, header http.Header, body []byte) (*model.Response, error) {
	resp := &model.Response{
		StatusCode: status,
		Header:     header,
		Type:       rt,
	}

	switch rt {
	case model.ResponseTypeNone:
		return resp, nil

	case model.ResponseTypeText:
		if !utf8.Valid(body) {
			return nil, &model.DecodeError{Type: rt, Err: errors.New("body is not valid utf-8")}
		}
		resp.Body = body
		resp.Text = string(body)
		return resp, nil

	case model.ResponseTypeJSON:
		var value any
		if err := json.Unmarshal(body, &value); err != nil {
			return nil, &model.DecodeError{Type: rt, Err: err}
		}
		resp.Body = body
		resp.JSON = value
		return resp, nil

	case model.ResponseTypeBuffer:
		resp.Body = body
		return resp, nil

	case model.ResponseTypeBlob:
		resp.Body = body
		resp.Blob = &model.Blob{ContentType: header.Get("Content-Type"), Data: body}
		return resp, nil

	case model.ResponseTypeImage:
		img, _, err := image.Decode(bytes.NewReader(body))
		if err != nil {
			return nil, &model.DecodeError{Type: rt, Err: err}
		}
		resp.Body = body
		resp.Image = img
		return resp, nil
	}

	return nil, &model.DecodeError{Type: rt, Err: errors.New("unknown response type")}
}
