// Package apperr defines the error taxonomy shared across the card engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrPermission    = errors.New("permission denied")
)

// ParseError reports a malformed card file. It is always local to one
// file: callers skip the file and continue with its siblings.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a field value that violates its schema. It
// blocks a save and is surfaced to the editor, never silently defaulted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// CompanionWriteError reports a failed companion-file write. The primary
// file has already been rolled back when this error is returned.
type CompanionWriteError struct {
	Primary   string
	Companion string
	Err       error
}

func (e *CompanionWriteError) Error() string {
	return fmt.Sprintf("write companion %s for %s: %v", e.Companion, e.Primary, e.Err)
}

func (e *CompanionWriteError) Unwrap() error { return e.Err }
