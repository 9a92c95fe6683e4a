package mpesa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Payload is an inbound webhook body. The gateway does not version its payloads,
// so fields are looked up by name and numbers are accepted in either JSON form.
type Payload map[string]interface{}

// ParsePayload decodes a webhook body into a Payload. Anything other than a single
// JSON object is a *ValidationError.
func ParsePayload(raw []byte) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Err: errors.New("empty body")}
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var payload Payload
	if err := decoder.Decode(&payload); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if payload == nil {
		return nil, &ValidationError{Err: errors.New("body is not a JSON object")}
	}

	var extra interface{}
	if err := decoder.Decode(&extra); err != io.EOF {
		return nil, &ValidationError{Err: errors.New("unexpected data after JSON object")}
	}
	return payload, nil
}

// String returns the field as a trimmed string. Missing, null and non-scalar
// values are reported as absent, and so is a blank string.
func (p Payload) String(field string) (string, bool) {
	value, ok := p[field]
	if !ok || value == nil {
		return "", false
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case bool:
		s = fmt.Sprint(v)
	default:
		return "", false
	}

	s = strings.TrimSpace(s)
	return s, s != ""
}

// Get returns the field or the empty string
func (p Payload) Get(field string) string {
	s, _ := p.String(field)
	return s
}

// Require returns a *ValidationError naming the first absent field
func (p Payload) Require(fields ...string) error {
	for _, field := range fields {
		if _, ok := p.String(field); !ok {
			return &ValidationError{Field: field}
		}
	}
	return nil
}
