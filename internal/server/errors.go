package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/howard-nolan/sgenius/internal/normalize"
	"github.com/howard-nolan/sgenius/internal/provider"
)

// errorKind is the client-facing classification of a failure.
type errorKind string

const (
	kindMissingField  errorKind = "missing_field"
	kindBadRequest    errorKind = "bad_request"
	kindTooLarge      errorKind = "too_large"
	kindConfiguration errorKind = "configuration"
	kindUpstream      errorKind = "upstream"
	kindInvalidFormat errorKind = "invalid_format"
	kindInternal      errorKind = "internal"
)

// status maps a kind to its HTTP status: caller mistakes are 4xx,
// everything on our side or the model's side is 500.
func (k errorKind) status() int {
	switch k {
	case kindMissingField, kindBadRequest:
		return http.StatusBadRequest
	case kindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// missingFieldError is returned by validation before any generation call.
type missingFieldError struct {
	field string
	msg   string // client-facing; defaults to "<field> is required"
}

func (e *missingFieldError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.field + " is required"
}

func missingField(field string) error { return &missingFieldError{field: field} }

// badRequestError carries a message that is safe to show the caller.
// cause, if any, is only logged.
type badRequestError struct {
	msg   string
	cause error
}

func (e *badRequestError) Error() string { return e.msg }

func (e *badRequestError) Unwrap() error { return e.cause }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// classify walks the error chain to find its kind.
func classify(err error) errorKind {
	var (
		mf    *missingFieldError
		br    *badRequestError
		mbe   *http.MaxBytesError
		upErr *provider.UpstreamError
	)
	switch {
	case errors.As(err, &mf):
		return kindMissingField
	case errors.As(err, &mbe):
		return kindTooLarge
	case errors.As(err, &br):
		return kindBadRequest
	case errors.Is(err, provider.ErrNoCredential):
		return kindConfiguration
	case errors.Is(err, normalize.ErrInvalidFormat):
		return kindInvalidFormat
	case errors.As(err, &upErr):
		return kindUpstream
	default:
		return kindInternal
	}
}

// Generic messages for failures on our side. Caller errors use the
// error's own message instead; it only ever names fields.
var defaultMessages = map[errorKind]string{
	kindTooLarge:      "request body too large",
	kindConfiguration: "Server configuration error: Missing API Key",
	kindUpstream:      "Error generating content from the AI model.",
	kindInvalidFormat: "The AI returned an invalid format.",
	kindInternal:      "An internal server error occurred.",
}

// publicMessage picks what the client sees for err. Server-side kinds
// never echo err itself: it may carry upstream diagnostics.
func publicMessage(kind errorKind, err error, overrides map[errorKind]string) string {
	if msg, ok := overrides[kind]; ok {
		return msg
	}
	switch kind {
	case kindMissingField, kindBadRequest:
		return err.Error()
	}
	return defaultMessages[kind]
}
