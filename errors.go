package fbdriver

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a driver error.
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeResourceAlreadyDisposed is returned by any operation on a
	// disconnected attachment, finished transaction, disposed statement,
	// closed result set or closed blob stream.
	ErrorTypeResourceAlreadyDisposed
	// ErrorTypeParameterCountMismatch means the number of values differs from
	// the number of statement parameters.
	ErrorTypeParameterCountMismatch
	// ErrorTypeParameterValueMissing means a named placeholder has no value.
	ErrorTypeParameterValueMissing
	// ErrorTypeValueTooLong means a text value exceeds the column length.
	ErrorTypeValueTooLong
	// ErrorTypeUnsupportedType means a column type or value has no codec.
	ErrorTypeUnsupportedType
	// ErrorTypeCrossSessionBlob means a blob belongs to another attachment.
	ErrorTypeCrossSessionBlob
	// ErrorTypeNativeCallFailure wraps a failed native call.
	ErrorTypeNativeCallFailure
	// ErrorTypeInvalidState means the resource is open but cannot serve the
	// call in its current mode.
	ErrorTypeInvalidState
	// ErrorTypeClientExists means a client is already open on the provider.
	ErrorTypeClientExists
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeResourceAlreadyDisposed:
		return "ResourceAlreadyDisposed"
	case ErrorTypeParameterCountMismatch:
		return "ParameterCountMismatch"
	case ErrorTypeParameterValueMissing:
		return "ParameterValueMissing"
	case ErrorTypeValueTooLong:
		return "ValueTooLong"
	case ErrorTypeUnsupportedType:
		return "UnsupportedType"
	case ErrorTypeCrossSessionBlob:
		return "CrossSessionBlob"
	case ErrorTypeNativeCallFailure:
		return "NativeCallFailure"
	case ErrorTypeInvalidState:
		return "InvalidState"
	case ErrorTypeClientExists:
		return "ClientExists"
	}
	return "Unknown"
}

// Error represents a structured error with type information
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fbdriver: %s: %v", e.Message, e.Cause)
	}
	return "fbdriver: " + e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// NewError creates a new Error with the specified type and message
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithCause creates a new Error with the specified type, message, and underlying cause
func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{Type: errorType, Message: message, Cause: cause}
}

func errDisposed(what string) *Error {
	return NewError(ErrorTypeResourceAlreadyDisposed, what+" is already disposed")
}

func errNative(call string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeNativeCallFailure, call+" failed", cause)
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err is not a
// driver error.
func TypeOf(err error) ErrorType {
	var fbErr *Error
	if errors.As(err, &fbErr) {
		return fbErr.Type
	}
	return ErrorTypeUnknown
}

// IsResourceAlreadyDisposed checks if an error reports use of a released resource
func IsResourceAlreadyDisposed(err error) bool {
	return TypeOf(err) == ErrorTypeResourceAlreadyDisposed
}

// IsParameterCountMismatch checks if an error reports a wrong number of parameters
func IsParameterCountMismatch(err error) bool {
	return TypeOf(err) == ErrorTypeParameterCountMismatch
}

// IsParameterValueMissing checks if an error reports a missing named parameter
func IsParameterValueMissing(err error) bool {
	return TypeOf(err) == ErrorTypeParameterValueMissing
}

// IsValueTooLong checks if an error reports an oversized text value
func IsValueTooLong(err error) bool {
	return TypeOf(err) == ErrorTypeValueTooLong
}

// IsUnsupportedType checks if an error reports a type without codec
func IsUnsupportedType(err error) bool {
	return TypeOf(err) == ErrorTypeUnsupportedType
}

// IsCrossSessionBlob checks if an error reports a blob from another attachment
func IsCrossSessionBlob(err error) bool {
	return TypeOf(err) == ErrorTypeCrossSessionBlob
}

// IsNativeCallFailure checks if an error wraps a native call failure
func IsNativeCallFailure(err error) bool {
	return TypeOf(err) == ErrorTypeNativeCallFailure
}

// IsInvalidState checks if an error reports a call in the wrong mode
func IsInvalidState(err error) bool {
	return TypeOf(err) == ErrorTypeInvalidState
}

// IsClientExists checks if an error reports a second client on the provider
func IsClientExists(err error) bool {
	return TypeOf(err) == ErrorTypeClientExists
}
