package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrFragmentNotFound is returned when a trim marker is missing from a body.
	ErrFragmentNotFound = errors.New("fragment markers not found")
	// ErrParamNotFound is returned when a named parameter is absent.
	ErrParamNotFound = errors.New("param not found")
	// ErrNotFound is returned when a requested record is absent.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned on unique constraint violations.
	ErrDuplicateKey = errors.New("duplicate key violation")
	// ErrForeignKeyViolation is returned on foreign key violations.
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// FetchError reports a failed retrieval of a remote resource.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports a payload that does not conform to its shape.
type DecodeError struct {
	Shape string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Shape, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ParseError reports a start time that cannot be read.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse time %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError reports a failed read or write against the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReportingError reports a failed run-record delivery.
type ReportingError struct {
	Sink string
	Err  error
}

func (e *ReportingError) Error() string {
	return fmt.Sprintf("report via %s: %v", e.Sink, e.Err)
}

func (e *ReportingError) Unwrap() error { return e.Err }
