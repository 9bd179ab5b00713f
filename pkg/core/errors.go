package core

import (
	"errors"
	"fmt"
)

// Error is the typed error shared by the interview worker packages.
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrConfiguration is fatal for a session: it aborts before media is joined.
	ErrConfiguration ErrorType = "configuration_error"
	// ErrContext covers backend lookups while resolving interview context.
	ErrContext ErrorType = "context_error"
	// ErrEngine covers failures of the conversation engine while a session is active.
	ErrEngine ErrorType = "engine_error"
	// ErrPersistence covers transcript persistence calls.
	ErrPersistence ErrorType = "persistence_error"
	// ErrTransport covers the realtime room and dispatcher connections.
	ErrTransport ErrorType = "transport_error"
)

// NewConfigurationError creates a configuration error.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Type: ErrConfiguration, Op: op, Err: err}
}

// NewContextError creates a context-resolution error.
func NewContextError(op string, err error) *Error {
	return &Error{Type: ErrContext, Op: op, Err: err}
}

// NewEngineError creates an engine error.
func NewEngineError(op string, err error) *Error {
	return &Error{Type: ErrEngine, Op: op, Err: err}
}

// NewPersistenceError creates a persistence error.
func NewPersistenceError(op string, err error) *Error {
	return &Error{Type: ErrPersistence, Op: op, Err: err}
}

// NewTransportError creates a transport error.
func NewTransportError(op string, err error) *Error {
	return &Error{Type: ErrTransport, Op: op, Err: err}
}

// IsType reports whether err (or anything it wraps) is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// IsFatal returns true if the error must abort a session before it starts.
func (e *Error) IsFatal() bool {
	return e.Type == ErrConfiguration
}
