package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// flexString accepts the loosely typed values the browser frontend sends
// for free-text fields: a string, a number (grades arrive as 85 or "B+"),
// or a list of strings (topics), which is joined with ", ".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*f = flexString(strings.Join(list, ", "))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.New("expected a string, number, or list of strings")
		}
		*f = flexString(n.String())
	}
	return nil
}

// String returns the value with surrounding whitespace removed.
func (f flexString) String() string { return strings.TrimSpace(string(f)) }

// blank reports whether a required field is effectively absent.
func (f flexString) blank() bool { return f.String() == "" }

// flexInt accepts a count sent as 3, 3.0 or "3". Python's json module
// (and a few frontends) emit integral floats and quoted numbers, and the
// handler should not care. Anything with a fractional part is rejected.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	// Unquote "3" first; from here on both forms look the same.
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.New("expected an integer")
	}
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return errors.New("expected an integer")
	}
	*f = flexInt(v)
	return nil
}
