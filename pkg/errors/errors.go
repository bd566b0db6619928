// Package errors provides structured error handling for the Sage plugin
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal plugin errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents settings or request validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents an unknown logical module or bad process config
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents session open and login failures
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeMetadata represents describe, column and row count failures
	ErrorTypeMetadata ErrorType = "metadata"
	// ErrorTypeDataIntegrity represents a row whose field count does not match its columns
	ErrorTypeDataIntegrity ErrorType = "data_integrity"
	// ErrorTypeWrite represents insert and update failures
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeTimeout represents a write that exceeded its commit SLA
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeDuplicateKey represents an insert rejected because the key already exists
	ErrorTypeDuplicateKey ErrorType = "duplicate_key"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether any error in err's chain is of the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// BridgeError is the composite failure of a call into the legacy system.
// The legacy system rarely returns structured codes, so the attempted
// operation, its parameters and the session's last error text travel together.
type BridgeError struct {
	Op        string
	Params    []string
	LastError string
	Err       error
}

// Error implements the error interface
func (b *BridgeError) Error() string {
	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(b.LastError)
	sb.WriteString(", Method: ")
	sb.WriteString(b.Op)
	sb.WriteString(", Params: [")
	sb.WriteString(strings.Join(b.Params, ", "))
	sb.WriteString("]")
	if b.Err != nil {
		sb.WriteString(", Cause: ")
		sb.WriteString(b.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error
func (b *BridgeError) Unwrap() error {
	return b.Err
}

// Bridge builds a typed error whose cause is a BridgeError
func Bridge(errType ErrorType, op string, params []string, lastError string, cause error) *Error {
	be := &BridgeError{
		Op:        op,
		Params:    params,
		LastError: lastError,
		Err:       cause,
	}
	return &Error{
		Type:    errType,
		Message: op + " failed",
		Cause:   be,
		Stack:   captureStack(2),
	}
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
