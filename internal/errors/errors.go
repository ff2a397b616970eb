// Package errors defines the typed error taxonomy used across the pipeline.
//
// Three classes matter operationally:
//
//   - Config errors: unsupported year, missing sheet, missing required
//     column. Fail fast with the offending year/column and alternatives.
//   - Invariant errors: merge artifacts, leakage survivors, shape
//     mismatches. Always raised; they indicate a pipeline defect.
//   - Validation errors: contract verdicts aggregated by severity; raised
//     only under strict mode.
//
// Data-quality anomalies are deliberately NOT errors. They degrade to the
// missing marker and are counted in coercion reports.
package errors

import (
	"fmt"
)

// ErrorType classifies an error for handling and exit-code decisions.
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeInvariant  ErrorType = "INVARIANT"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeStorage    ErrorType = "STORAGE"
)

// AppError is the application error carrying type, message, cause and
// structured context for log attachment.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a typed application error.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error (unsupported year, bad sheet
// mapping, strict-mode alias miss).
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewNotFoundError creates a missing-resource error.
func NewNotFoundError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNotFound, message, cause)
}

// NewParsingError creates a workbook/contract parsing error.
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewInvariantError creates a pipeline-defect error. These must stop
// processing immediately; never downgrade them to warnings.
func NewInvariantError(message string, cause error) *AppError {
	return NewAppError(ErrTypeInvariant, message, cause)
}

// NewValidationError creates a contract-validation error used by strict mode.
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewStorageError creates an artifact-persistence error.
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// IsInvariant reports whether err is (or wraps) an invariant violation.
func IsInvariant(err error) bool {
	return isType(err, ErrTypeInvariant)
}

// IsConfig reports whether err is (or wraps) a configuration error.
func IsConfig(err error) bool {
	return isType(err, ErrTypeConfig)
}

// IsNotFound reports whether err is (or wraps) a missing-resource error.
func IsNotFound(err error) bool {
	return isType(err, ErrTypeNotFound)
}

// IsValidation reports whether err is (or wraps) a contract-validation error.
func IsValidation(err error) bool {
	return isType(err, ErrTypeValidation)
}

func isType(err error, t ErrorType) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Type == t {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
