package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serializes v as the response body.
//
// The Content-Type header has to be set BEFORE WriteHeader: once the
// status line goes out, headers are locked in.
//
// encoding/json escapes <, > and & by default so JSON can be pasted into
// HTML safely. Our bodies are consumed by fetch(), never inlined into a
// page, and model text like "a < b" should reach the browser byte for
// byte, so escaping is turned off.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a single JSON object from the request body into dst,
// capped at maxBytes. Every failure is a caller error.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			return mbe
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		default:
			return &badRequestError{msg: "invalid request body", cause: err}
		}
	}
	return nil
}
