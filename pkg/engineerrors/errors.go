// Package engineerrors classifies the error kinds the core recognizes
// (spec.md §7), grounded on the teacher's pkg/storage/errors.go
// StorageError/ErrorClassifier pattern.
package engineerrors

import "fmt"

// Code identifies one of the error kinds the core recognizes.
type Code int

const (
	// CodeAllocationExhausted: a buffer request could not be served.
	CodeAllocationExhausted Code = iota
	// CodeProtocolError: malformed header, unknown channel, version mismatch.
	CodeProtocolError
	// CodeEndOfStream: normal termination, triggers drain through the graph.
	CodeEndOfStream
	// CodeRecoverableIO: short reads, transient network full; retried at the call site.
	CodeRecoverableIO
	// CodeFatalInvariant: refcount underflow, slice ordering violation, OOB
	// tuple index. The process must abort after logging.
	CodeFatalInvariant
	// CodeConfigInvalid: source/sink/join/window configuration inconsistency
	// discovered at setup.
	CodeConfigInvalid
)

func (c Code) String() string {
	switch c {
	case CodeAllocationExhausted:
		return "allocation_exhausted"
	case CodeProtocolError:
		return "protocol_error"
	case CodeEndOfStream:
		return "end_of_stream"
	case CodeRecoverableIO:
		return "recoverable_io"
	case CodeFatalInvariant:
		return "fatal_invariant"
	case CodeConfigInvalid:
		return "config_invalid"
	default:
		return "unknown"
	}
}

// EngineError is the core's standardized error type, analogous to the
// teacher's StorageError but keyed by engine Component instead of backend
// type.
type EngineError struct {
	Code      Code
	Component string // "buffer", "task", "window", "join", "network", ...
	Message   string
	Cause     error
	Metadata  map[string]interface{}
}

func New(code Code, component, message string, cause error) *EngineError {
	return &EngineError{Code: code, Component: component, Message: message, Cause: cause}
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Component, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Component, e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *EngineError with the same Code, so
// callers can use errors.Is(err, engineerrors.New(CodeEndOfStream, ...)).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsFatal reports whether err represents a fatal invariant violation that
// must abort the process per spec.md §7.
func IsFatal(err error) bool {
	ee, ok := err.(*EngineError)
	return ok && ee.Code == CodeFatalInvariant
}
