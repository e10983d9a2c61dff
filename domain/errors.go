package domain

import (
	"errors"
	"fmt"
)

// TransientError is a network or service fault worth retrying
// (rate limiting, 5xx, dropped connections).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is bad input or an unusable response; retrying cannot help.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// FormatError is a corrupt line of the record store.
type FormatError struct {
	Path string
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:%d: corrupt record: %v", e.Path, e.Line, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Permanent wraps err as a PermanentError.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
