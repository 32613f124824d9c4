package procedure

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an engine error for recovery decisions.
type ErrorClass string

const (
	// ClassFatal marks errors with no automatic recovery: store
	// corruption, incompatible resume, checkpoint persistence
	// failure. Stopping beats silently discarding progress.
	ClassFatal ErrorClass = "fatal"

	// ClassRecoverable marks errors the last checkpoint survives:
	// re-running the procedure resumes at the same state.
	ClassRecoverable ErrorClass = "recoverable"

	// ClassAborted marks operator-declined actions: a clean stop with
	// the checkpoint intact.
	ClassAborted ErrorClass = "aborted"
)

// Error is a classified procedure-engine error carrying enough
// context to identify the failing procedure and state.
type Error struct {
	Class     ErrorClass
	Message   string
	Procedure string
	State     StateID
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Procedure != "" {
		msg += fmt.Sprintf(" (procedure=%s", e.Procedure)
		if e.State != "" {
			msg += fmt.Sprintf(", state=%s", e.State)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewFatal creates a fatal error.
func NewFatal(message string, err error) *Error {
	return &Error{Class: ClassFatal, Message: message, Err: err}
}

// NewRecoverable creates a recoverable error.
func NewRecoverable(message string, err error) *Error {
	return &Error{Class: ClassRecoverable, Message: message, Err: err}
}

// NewAborted creates an operator-abort error.
func NewAborted(message string, err error) *Error {
	return &Error{Class: ClassAborted, Message: message, Err: err}
}

// WithProcedure adds procedure context.
func (e *Error) WithProcedure(name string) *Error {
	e.Procedure = name
	return e
}

// WithState adds state context.
func (e *Error) WithState(id StateID) *Error {
	e.State = id
	return e
}

// IsFatal reports whether err is classified fatal.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassFatal
	}
	return false
}

// IsAborted reports whether err is an operator abort.
func IsAborted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassAborted
	}
	return false
}
