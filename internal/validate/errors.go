package validate

import (
	"errors"
	"fmt"
	"strings"
)

// Kind separates the ways a request can be rejected, so callers can map
// "wrong shape", "invalid content" and "too big" to distinct statuses.
type Kind string

const (
	// KindMalformed: the payload could not be read as multipart/JSON at all.
	KindMalformed Kind = "malformed"
	// KindInvalid: the payload parsed but failed structural or semantic checks.
	KindInvalid Kind = "invalid"
	// KindTooLarge: the dataset exceeds the configured row ceiling.
	KindTooLarge Kind = "too_large"
)

// FieldError is one field-scoped problem. The shape matches the error list
// rendered to clients.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries every field-level problem found in a request. Handlers
// render the full list; clients must never get a single opaque message.
type Error struct {
	Kind   Kind
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return string(e.Kind)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

// AsError unwraps a validation error from err.
func AsError(err error) (*Error, bool) {
	var v *Error
	ok := errors.As(err, &v)
	return v, ok
}

func malformed(field, message string) *Error {
	return &Error{Kind: KindMalformed, Fields: []FieldError{{Field: field, Message: message}}}
}

func tooLarge(field, message string) *Error {
	return &Error{Kind: KindTooLarge, Fields: []FieldError{{Field: field, Message: message}}}
}

func invalid(fields ...FieldError) *Error {
	return &Error{Kind: KindInvalid, Fields: fields}
}
