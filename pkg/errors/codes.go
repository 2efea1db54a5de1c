package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique identifier for specific error conditions in wmswitch.
type ErrorCode int

const (
	ErrCodeUnknown         ErrorCode = 1000
	ErrCodeSettingsInvalid ErrorCode = 1001

	// Arbitration
	ErrCodeProbeFailed ErrorCode = 2001

	// Launch
	ErrCodeLaunchFailed     ErrorCode = 3001
	ErrCodeStartTimeout     ErrorCode = 3002
	ErrCodeCandidateMissing ErrorCode = 3003

	// Persistence
	ErrCodeConfigLoad ErrorCode = 4001
	ErrCodeConfigSave ErrorCode = 4002

	// Toggle sources
	ErrCodeTriggerFailed ErrorCode = 5001
)

// WMError is a custom error type that provides structured error information,
// including an error code, the operation being performed, and the underlying cause.
type WMError struct {
	// Code is the specific error code.
	Code ErrorCode
	// Msg is a human-readable description of the error.
	Msg string
	// Operation describes the action being performed when the error occurred.
	Operation string
	// Err is the underlying error that caused this error, if any.
	Err error
}

// Error returns a formatted string representation of the error.
func (e *WMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %s (cause: %v)", e.Code, e.Operation, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Msg)
}

// Unwrap returns the underlying error.
func (e *WMError) Unwrap() error {
	return e.Err
}

// New creates a new WMError with the specified code, operation, message, and underlying error.
func New(code ErrorCode, op, msg string, err error) error {
	return &WMError{
		Code:      code,
		Msg:       msg,
		Operation: op,
		Err:       err,
	}
}

// Is reports whether any error in err's chain is a WMError carrying code.
func Is(err error, code ErrorCode) bool {
	var we *WMError
	for err != nil {
		if !stderrors.As(err, &we) {
			return false
		}
		if we.Code == code {
			return true
		}
		err = we.Err
	}
	return false
}

// Personal.AI order the ending
