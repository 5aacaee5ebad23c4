// Package rpc implements the JSON-RPC client for the ERP server: session
// lifecycle, the seven primitive operations, domain literals, relational
// write commands, and the error taxonomy shared across the engine.
package rpc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for retry and recovery decisions.
type ErrorKind string

const (
	// KindNotAuthenticated indicates an operation was invoked without a live session.
	KindNotAuthenticated ErrorKind = "not_authenticated"

	// KindAuth indicates bad credentials or an expired session.
	KindAuth ErrorKind = "auth"

	// KindNetwork indicates a transport failure (connection refused, timeout, DNS).
	KindNetwork ErrorKind = "network"

	// KindProtocol indicates a malformed or unexpected JSON-RPC response.
	KindProtocol ErrorKind = "protocol"

	// KindRPC indicates the server returned a fault (validation, access rights, constraint).
	KindRPC ErrorKind = "rpc"

	// KindValidation indicates a planner or applier pre-flight rejection.
	KindValidation ErrorKind = "validation"

	// KindInvalidInput indicates malformed caller input (empty model, bad domain shape).
	KindInvalidInput ErrorKind = "invalid_input"
)

// Error is a classified error with ERP context. All failures surfaced by the
// client, planner, and applier are of this type so callers can branch on Kind.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the server fault code when Kind is KindRPC, or an engine code.
	Code string `json:"code,omitempty"`

	// Model is the model the failing operation targeted, if applicable.
	Model string `json:"model,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Data carries structured fault data returned by the server.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Model != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (model=%s, operation=%s)", e.Kind, msg, e.Model, e.Operation)
	}
	if e.Model != "" {
		return fmt.Sprintf("[%s] %s (model=%s)", e.Kind, msg, e.Model)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two Errors match when their
// Kind and Code match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewNotAuthenticatedError creates an error for operations invoked without a session.
func NewNotAuthenticatedError(operation string) *Error {
	return &Error{
		Kind:      KindNotAuthenticated,
		Message:   "not authenticated",
		Operation: operation,
	}
}

// NewAuthError creates an authentication failure error.
func NewAuthError(message string, err error) *Error {
	return &Error{Kind: KindAuth, Message: message, Err: err}
}

// NewNetworkError creates a transport failure error.
func NewNetworkError(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

// NewProtocolError creates an error for malformed JSON-RPC responses.
func NewProtocolError(message string, err error) *Error {
	return &Error{Kind: KindProtocol, Message: message, Err: err}
}

// NewRPCError creates a server fault error.
func NewRPCError(message string, err error) *Error {
	return &Error{Kind: KindRPC, Message: message, Err: err}
}

// NewValidationError creates a pre-flight rejection error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewInvalidInputError creates an error for malformed caller input.
func NewInvalidInputError(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// WithModel adds model context to an error.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithData attaches structured server fault data to an error.
func (e *Error) WithData(data map[string]interface{}) *Error {
	e.Data = data
	return e
}

// KindOf returns the ErrorKind of err, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotAuthenticated reports whether err is a missing-session error.
func IsNotAuthenticated(err error) bool { return KindOf(err) == KindNotAuthenticated }

// IsAuthError reports whether err is a credential or session-expiry failure.
func IsAuthError(err error) bool { return KindOf(err) == KindAuth }

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool { return KindOf(err) == KindNetwork }

// IsRPCError reports whether err is a server fault.
func IsRPCError(err error) bool { return KindOf(err) == KindRPC }

// IsValidationError reports whether err is a pre-flight rejection.
func IsValidationError(err error) bool { return KindOf(err) == KindValidation }

// IsInvalidInput reports whether err is malformed caller input.
func IsInvalidInput(err error) bool { return KindOf(err) == KindInvalidInput }

// Common engine error codes.
const (
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeValidationFault = "VALIDATION_FAULT"
	ErrCodeConstraint      = "CONSTRAINT_VIOLATION"
	ErrCodeMissingRecord   = "MISSING_RECORD"
	ErrCodeSessionExpired  = "SESSION_EXPIRED"
	ErrCodeOperationCap    = "OPERATION_CAP_EXCEEDED"
	ErrCodeBadReference    = "BAD_REFERENCE"
	ErrCodeCycle           = "DEPENDENCY_CYCLE"
	ErrCodeBadIDForm       = "BAD_ID_FORM"
)
