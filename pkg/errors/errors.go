// Package errors provides structured error handling for freightsync with
// categorization, key-value context, stack capture and retry classification.
//
// # Overview
//
// Every failure that crosses a package boundary in the integration engine is an
// *Error carrying an ErrorType. The type drives the engine's retry policy, the
// HTTP status returned by the API and the audit trail:
//
//   - config, validation, capability: fatal, surfaced immediately
//   - rate_limit: admission rejected, carries a retry_after detail
//   - timeout, connection: transient, retried with backoff
//   - data: a batch that cannot be processed at all
//
// # Basic Usage
//
//	err := errors.New(errors.ErrorTypeConfig, "unknown carrier").
//	    WithDetail("carrier_id", id)
//
//	if errors.IsRetryable(err) {
//	    // back off and try again
//	}
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"time"
)

// ErrorType represents the category of error, used for retry decisions,
// monitoring and API response mapping.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors, including exhausted retries
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents unknown connections, alerts or carriers
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeRateLimit represents admission rejections and upstream throttling
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents requests aborted by the per-request deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents transient network and gateway failures
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents rejected carrier credentials
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConfig represents configuration errors such as an unsupported transport
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents a payload that cannot be processed
	ErrorTypeData ErrorType = "data"
	// ErrorTypeCapability represents a transport that is not supported or not implemented
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeHealth represents failed health checks
	ErrorTypeHealth ErrorType = "health"
)

// Detail keys shared across packages.
const (
	DetailRetryAfter = "retry_after"
	DetailUpstream   = "upstream"
	DetailRetries    = "retries"
	DetailStatusCode = "status_code"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. It can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving it as the
// cause. If the error is already a structured Error its stack is preserved.
// Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if stderrors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether the engine should retry the operation that
// produced err. Timeouts and connection failures are retryable. Rate limit
// errors are retryable only when they came from the carrier (upstream=true);
// the engine's own admission rejections are surfaced to the caller.
func IsRetryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	case ErrorTypeRateLimit:
		v, _ := GetDetail(err, DetailUpstream)
		upstream, _ := v.(bool)
		return upstream
	default:
		return false
	}
}

// IsType checks if the outermost structured error in the chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if !stderrors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// GetDetail looks up a detail on the first structured error in the chain that has it.
func GetDetail(err error, key string) (interface{}, bool) {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return nil, false
		}
		if v, ok := e.Details[key]; ok {
			return v, true
		}
		err = e.Cause
	}
	return nil, false
}

// RetryAfter returns the retry_after hint carried by a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	v, ok := GetDetail(err, DetailRetryAfter)
	if !ok {
		return 0, false
	}
	d, ok := v.(time.Duration)
	return d, ok
}

// Is, As and Join re-export the standard library helpers so callers need a
// single errors import.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	Join = stderrors.Join
)

// captureStack records up to 32 frames, skipping the given number of callers.
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
