package reading

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedJSON = errors.New("malformed json")
	ErrMissingField  = errors.New("missing field")
	ErrBadTimestamp  = errors.New("bad timestamp")
)

// Kind classifies why a raw record was rejected.
type Kind int

const (
	KindMalformedJSON Kind = iota + 1
	KindMissingField
	KindBadTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindMalformedJSON:
		return "malformed_json"
	case KindMissingField:
		return "missing_field"
	case KindBadTimestamp:
		return "bad_timestamp"
	default:
		return "unknown"
	}
}

// ValidationError is returned by Normalize for any record that cannot become
// a Reading. Field names the offending input field when there is one.
type ValidationError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: field %q: %v", e.Kind, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: field %q", e.Kind, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches the sentinel error for the Kind.
func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case KindMalformedJSON:
		return target == ErrMalformedJSON
	case KindMissingField:
		return target == ErrMissingField
	case KindBadTimestamp:
		return target == ErrBadTimestamp
	}
	return false
}
