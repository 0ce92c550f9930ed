package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"paycore/internal/transport/http/api"
)

var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON reads exactly one JSON object from the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	return decode(r.Body, dst)
}

// DecodeJSONBytes is DecodeJSON for a body the handler has already read.
func DecodeJSONBytes(raw []byte, dst any) error {
	return decode(bytes.NewReader(raw), dst)
}

func decode(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("request body has trailing data")
	}
	return nil
}

// FailDecode writes the response for a decode or body read error.
func FailDecode(w http.ResponseWriter, err error, requestID string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), requestID)
		return
	}
	api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), requestID)
}
