package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the non-validation failure kinds. Wrap them with
// fmt.Errorf("...: %w", ErrX) to add context; classify with KindOf.
var (
	// ErrUnauthorized means no usable principal was supplied.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the principal is known but lacks rights.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means a grid, column or row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a write was based on a stale version of a row.
	ErrConflict = errors.New("stale write: the row was modified by another user, refresh and retry")

	// ErrConfiguration means a column definition that should have been
	// rejected upstream reached the validation engine.
	ErrConfiguration = errors.New("configuration error")
)

// ErrorKind classifies an error returned by the core.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err. Configuration is checked before validation
// because an unknown column type surfaces through the cell validator.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindUnknown
}

// NoRow marks a ValidationError that is not tied to a batch position.
const NoRow = -1

// ValidationError is a schema or cell rejection.
type ValidationError struct {
	Row     int    // 0-based batch position, NoRow outside batches
	Column  string // Column or payload key involved, if any
	Value   string // Offending raw value, if any
	Message string // Human-readable reason

	err error // optional cause, e.g. ErrConfiguration
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Column != "" && !e.namesColumn() {
		msg = fmt.Sprintf("%s: %s", e.Column, e.Message)
	}
	if e.Row >= 0 {
		return fmt.Sprintf("row %d: %s", e.Row+1, msg)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.err }

// namesColumn reports whether Message already quotes the column name, so
// Error does not print it twice.
func (e *ValidationError) namesColumn() bool {
	return containsQuoted(e.Message, e.Column)
}

// AtRow returns a copy of e positioned at a batch index.
func (e *ValidationError) AtRow(index int) *ValidationError {
	cp := *e
	cp.Row = index
	return &cp
}

// NewValidationError builds a ValidationError not tied to a row.
func NewValidationError(column, format string, args ...any) *ValidationError {
	return &ValidationError{
		Row:     NoRow,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

func containsQuoted(msg, name string) bool {
	return name != "" && strings.Contains(msg, "'"+name+"'")
}
