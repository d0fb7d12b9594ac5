// Package storeerr defines the error-kind taxonomy shared across the core
// components. Callers compare with errors.Is against the sentinel values
// here rather than switching on concrete types.
package storeerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input: a bad setting bound, a bad
	// exclusion type, a missing required field.
	ErrValidation = errors.New("validation")

	// ErrNotFound marks a reference to an entity id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a unique constraint violation or a "scan already
	// in progress" refusal.
	ErrConflict = errors.New("conflict")

	// ErrStorage marks any database failure that isn't a conflict.
	ErrStorage = errors.New("storage")

	// ErrProbeFailed marks a non-zero exit or malformed output from the
	// external probe tool.
	ErrProbeFailed = errors.New("probe failed")

	// ErrNoVideoStream marks a probed file with no video stream.
	ErrNoVideoStream = errors.New("no video stream")

	// ErrEncodeFailed marks a transcoder non-zero exit after the
	// CPU-decode retry.
	ErrEncodeFailed = errors.New("encode failed")

	// ErrIO marks a copy/rename/unlink failure during scratch handling
	// or safe replace.
	ErrIO = errors.New("io")

	// ErrCancelled marks explicit cancellation of the current encode or
	// scan.
	ErrCancelled = errors.New("cancelled")
)

// Wrap annotates err with a message while keeping it matchable against kind
// via errors.Is.
func Wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Wrapf is Wrap with formatting.
func Wrapf(kind error, format string, args ...any) error {
	return Wrap(kind, fmt.Sprintf(format, args...))
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
