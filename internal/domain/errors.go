package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures raised by the upstream clients.
type ErrorKind int

const (
	// KindInvalidInput means the caller supplied a malformed key. Never reaches the network.
	KindInvalidInput ErrorKind = iota
	// KindNotFound means the upstream confirmed the entity does not exist.
	KindNotFound
	// KindPermissionDenied covers authentication and authorization failures.
	KindPermissionDenied
	// KindRuntime covers every other upstream, network or unexpected failure.
	KindRuntime
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a ClientError's kind.
var (
	ErrInvalidInput     = &ClientError{Kind: KindInvalidInput}
	ErrNotFound         = &ClientError{Kind: KindNotFound}
	ErrPermissionDenied = &ClientError{Kind: KindPermissionDenied}
	ErrRuntime          = &ClientError{Kind: KindRuntime}
)

// ClientError is a failure in the domain taxonomy. Its Message is safe to show
// to the tool caller.
type ClientError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ClientError of the same kind.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewInvalidInputError creates an InvalidInput error.
func NewInvalidInputError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewPermissionDeniedError creates a PermissionDenied error.
func NewPermissionDeniedError(format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// NewRuntimeError creates a Runtime error wrapping cause.
func NewRuntimeError(cause error, format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: KindRuntime, Message: fmt.Sprintf(format, args...), Err: cause}
}

// AsClientError extracts a ClientError from err's chain.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
