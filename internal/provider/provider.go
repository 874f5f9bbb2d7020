// Package provider defines the Generator interface and the adapters that
// talk to the remote generation service.
//
// Handlers never call the remote service directly: they build a Request
// and hand it to a Generator. Which backend sits behind the interface
// (raw REST or the Google SDK) is decided once, in main.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Generator is the interface every generation backend must satisfy.
type Generator interface {
	// Name returns the backend identifier, e.g. "rest" or "genai".
	// Used for logging and error messages.
	Name() string

	// Generate makes exactly one call to the remote service and returns
	// the raw generated text. The text is not interpreted here, even when
	// req.Format is FormatJSON; that is the normalizer's job.
	//
	// Callers must pass a non-empty Prompt.
	Generate(ctx context.Context, req *Request) (string, error)
}

// Format selects what kind of text the remote service is asked to emit.
type Format int

const (
	// FormatText asks for free-form plain text.
	FormatText Format = iota
	// FormatJSON constrains the service to machine-parseable JSON.
	FormatJSON
)

// String returns the label used in logs and metrics.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// MIMEType returns the response MIME type the remote service understands.
func (f Format) MIMEType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/plain"
}

// Request is one generation call: a per-request user prompt plus the
// fixed, endpoint-specific system instruction.
type Request struct {
	Prompt            string
	SystemInstruction string // may be empty
	Format            Format
}

// Sampling holds generation parameters. Zero fields are omitted from the
// outbound call so the remote service applies its own defaults.
type Sampling struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// SamplingSet maps each response format to its sampling parameters.
type SamplingSet struct {
	Text Sampling
	JSON Sampling
}

// For returns the parameters that apply to format f.
func (s SamplingSet) For(f Format) Sampling {
	if f == FormatJSON {
		return s.JSON
	}
	return s.Text
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrNoCredential is returned when no API key was configured. It is
// reported per request rather than failing process start.
var ErrNoCredential = errors.New("no API key configured for the generation service")

// UpstreamError wraps any failure of the remote call itself: transport
// errors, timeouts, non-2xx responses and malformed response envelopes.
// Its message never includes the credential.
type UpstreamError struct {
	Backend    string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// upstreamErr is a small constructor to keep adapter code readable.
func upstreamErr(backend string, status int, err error) error {
	return &UpstreamError{Backend: backend, StatusCode: status, Err: err}
}
