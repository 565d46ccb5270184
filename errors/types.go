package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors. These block every operation rather than one
	// run, and are surfaced to the operator as a distinct status.
	ErrCodeConfigNotFound     ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid      ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation   ErrorCode = "CONFIG_VALIDATION"
	ErrCodeRunsRootUnreadable ErrorCode = "RUNS_ROOT_UNREADABLE"
	ErrCodeExecutableMissing  ErrorCode = "EXECUTABLE_NOT_FOUND"

	// Process/session errors. Recorded on the specific run, never fatal
	// to the supervisor.
	ErrCodeSpawnFailed   ErrorCode = "SPAWN_FAILED"
	ErrCodeNoLiveSession ErrorCode = "NO_LIVE_SESSION"
	ErrCodeSessionBusy   ErrorCode = "SESSION_BUSY"
	ErrCodeControlWrite  ErrorCode = "CONTROL_WRITE_FAILED"

	// Registry errors
	ErrCodeRunNotFound ErrorCode = "RUN_NOT_FOUND"

	// Daemon errors
	ErrCodeDaemonNotRunning ErrorCode = "DAEMON_NOT_RUNNING"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// WardenError represents a structured error with context
type WardenError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *WardenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *WardenError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *WardenError) WithDetail(key string, value interface{}) *WardenError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *WardenError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new WardenError
func New(code ErrorCode, message string) *WardenError {
	return &WardenError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a WardenError
func Wrap(err error, code ErrorCode, message string) *WardenError {
	return &WardenError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific WardenError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	wardenErr, ok := err.(*WardenError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return wardenErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	wardenErr, ok := err.(*WardenError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return wardenErr.Code
}
