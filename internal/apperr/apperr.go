// Package apperr defines the error taxonomy of a run and maps each kind to a stable
// process exit code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindValidation
	KindConnectivity
	KindDependency
	KindSync
	KindParse
	KindSink
)

var kindNames = map[Kind]string{
	KindUnknown:      "error",
	KindConfig:       "configuration error",
	KindValidation:   "validation error",
	KindConnectivity: "connectivity error",
	KindDependency:   "dependency error",
	KindSync:         "sync error",
	KindParse:        "parse error",
	KindSink:         "sink error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// ExitCode returns the process exit code for the kind. Zero is never returned.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindValidation:
		return 3
	case KindConnectivity:
		return 4
	case KindDependency:
		return 5
	case KindSync:
		return 6
	case KindParse:
		return 7
	case KindSink:
		return 8
	default:
		return 1
	}
}

// Error is a classified error. It supports wrapping so errors.Is/As work on the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode implements the exit coder contract used by main.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

// New wraps err with a kind and an operation name. A nil err yields nil.
// An err that is already classified keeps its original kind.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCodeOf extracts an exit code from any error, defaulting to 1.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
