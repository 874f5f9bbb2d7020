// Package normalize turns raw generated text into a response the server
// can encode, and is the one place where "the model said it would return
// JSON" becomes a hard check.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/howard-nolan/sgenius/internal/provider"
)

// Kind tells which variant of Response is populated.
type Kind int

const (
	KindText Kind = iota
	KindJSON
	KindError
)

// Code classifies a KindError response.
type Code string

// CodeInvalidUpstreamFormat means the remote text was not valid JSON (or
// not the expected shape) when JSON was required.
const CodeInvalidUpstreamFormat Code = "invalid_upstream_format"

// ErrInvalidFormat is the sentinel behind every CodeInvalidUpstreamFormat
// response, for errors.Is checks once Err() has been called.
var ErrInvalidFormat = errors.New("upstream returned an invalid format")

// Response is the normalized result of one generation.
//
//	KindText:  Text holds the raw text verbatim.
//	KindJSON:  Value holds the parsed document (numbers as json.Number).
//	KindError: Code and Message describe the failure.
type Response struct {
	Kind    Kind
	Text    string
	Value   any
	Code    Code
	Message string
}

// Payload returns what belongs inside an envelope: the text for KindText,
// the parsed value for KindJSON, nil otherwise.
func (r Response) Payload() any {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindJSON:
		return r.Value
	default:
		return nil
	}
}

// Err returns nil unless r is a KindError response.
func (r Response) Err() error {
	if r.Kind != KindError {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidFormat, r.Message)
}

// Normalize applies the rule for the expected format. Plain text never
// fails, and the empty string is a legal value. JSON must parse as exactly
// one document; there is no fence stripping or partial recovery.
//
// Numbers are kept as json.Number so a value like 12345678901234567890
// goes back out to the client exactly as the model wrote it, instead of
// being rounded through float64 on the way.
func Normalize(raw string, expected provider.Format) Response {
	if expected != provider.FormatJSON {
		return Response{Kind: KindText, Text: raw}
	}

	v, err := decode(raw)
	if err != nil {
		return invalid(err.Error())
	}
	return Response{Kind: KindJSON, Value: v}
}

// decode parses raw as a single JSON value. UseNumber keeps numbers
// exactly as the model wrote them when the value is encoded again.
func decode(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty JSON document")
		}
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}
	return v, nil
}

func invalid(msg string) Response {
	return Response{Kind: KindError, Code: CodeInvalidUpstreamFormat, Message: msg}
}
