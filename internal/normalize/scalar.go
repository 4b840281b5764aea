package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

type scalarKind uint8

const (
	scalarNone scalarKind = iota
	scalarNumber
	scalarString
)

// Scalar is a JSON value that may arrive as a number or a string.
// Objects, arrays, booleans and null decode to an absent Scalar.
type Scalar struct {
	text string
	kind scalarKind
}

// UnmarshalJSON never returns an error so one malformed field cannot
// fail the decode of the whole event.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = Scalar{}
	if len(data) == 0 {
		return nil
	}

	switch c := data[0]; {
	case c == '"':
		var str string
		if err := json.Unmarshal(data, &str); err == nil {
			*s = Scalar{text: str, kind: scalarString}
		}
	case c == '-' || (c >= '0' && c <= '9'):
		*s = Scalar{text: string(data), kind: scalarNumber}
	}
	return nil
}

// Present reports whether the value was a number or a string.
func (s Scalar) Present() bool {
	return s.kind != scalarNone
}

// IsNumber reports whether the value was a JSON number.
func (s Scalar) IsNumber() bool {
	return s.kind == scalarNumber
}

// Text returns the raw text of a number or the contents of a string.
func (s Scalar) Text() string {
	return s.text
}

// AsString returns the value only when it was a non-empty JSON string.
func (s Scalar) AsString() (string, bool) {
	if s.kind != scalarString || s.text == "" {
		return "", false
	}
	return s.text, true
}

// Float coerces the value to a finite float64.
// Blank or non-numeric strings are not numbers, never zero.
func (s Scalar) Float() (float64, bool) {
	if s.kind == scalarNone {
		return 0, false
	}
	text := strings.TrimSpace(s.text)
	if text == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// number is an optional float.
type number struct {
	v  float64
	ok bool
}

// pick returns the first value that coerces to a finite number.
func pick(values ...Scalar) number {
	for _, v := range values {
		if f, ok := v.Float(); ok {
			return number{v: f, ok: true}
		}
	}
	return number{}
}

// or returns n if set, otherwise the first set fallback.
func (n number) or(fallbacks ...number) number {
	if n.ok {
		return n
	}
	for _, f := range fallbacks {
		if f.ok {
			return f
		}
	}
	return number{}
}

// secondsCutoff separates unix seconds from unix milliseconds.
const secondsCutoff = 1e12

// maxMillis is 2^63; numeric timestamps at or beyond it do not fit int64.
const maxMillis = float64(math.MaxInt64)

// timestampLayouts are tried in order for non-numeric timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// TimestampMillis converts a provider timestamp to unix milliseconds.
// Values <= 1e12 are unix seconds. ISO 8601 strings are parsed.
// Anything unparseable or outside the int64 millisecond range falls back
// to now.
func TimestampMillis(s Scalar, now time.Time) int64 {
	if f, ok := s.Float(); ok {
		ms := f
		if f <= secondsCutoff {
			ms = math.Round(f * 1000)
		}
		if ms > -maxMillis && ms < maxMillis {
			return int64(ms)
		}
		return now.UnixMilli()
	}

	if text, ok := s.AsString(); ok {
		text = strings.TrimSpace(text)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t.UnixMilli()
			}
		}
	}

	return now.UnixMilli()
}
