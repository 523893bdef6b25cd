package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents different types of errors in the preparation system
type ErrorCategory string

const (
	// Resolution errors - a spec names a variant or parameter that does not exist
	CategoryResolution ErrorCategory = "resolution"
	// Storage errors - cache or dataset persistence failures
	CategoryStorage ErrorCategory = "storage"
	// Serialization errors - encoding or decoding a persisted value failed
	CategorySerialization ErrorCategory = "serialization"
	// Featurization errors - a single sample could not be featurized
	CategoryFeaturization ErrorCategory = "featurization"
	// Validation errors - invalid input or configuration
	CategoryValidation ErrorCategory = "validation"
	// Internal errors - unexpected system failures
	CategoryInternal ErrorCategory = "internal"
	// Configuration errors - invalid or missing configuration
	CategoryConfig ErrorCategory = "config"
)

// PrepError represents a standardized error in the preparation system
type PrepError struct {
	Category    ErrorCategory
	Module      string
	Operation   string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface
func (e *PrepError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("prep/%s: %s", e.Module, e.Message)
	}
	return fmt.Sprintf("prep: %s", e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *PrepError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target error
func (e *PrepError) Is(target error) bool {
	if prepErr, ok := target.(*PrepError); ok {
		return e.Category == prepErr.Category && e.Module == prepErr.Module
	}
	return errors.Is(e.Cause, target)
}

// WithContext adds context information to the error
func (e *PrepError) WithContext(key string, value interface{}) *PrepError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new PrepError
func New(module, message string, category ErrorCategory) *PrepError {
	return &PrepError{
		Module:   module,
		Message:  message,
		Category: category,
		Context:  make(map[string]interface{}),
	}
}

// Newf creates a new PrepError with formatted message
func Newf(module string, category ErrorCategory, format string, args ...interface{}) *PrepError {
	return &PrepError{
		Module:   module,
		Message:  fmt.Sprintf(format, args...),
		Category: category,
		Context:  make(map[string]interface{}),
	}
}

// Resolutionf creates a resolution error with formatted message
func Resolutionf(module, format string, args ...interface{}) *PrepError {
	return Newf(module, CategoryResolution, format, args...)
}

// Storagef creates a storage error with formatted message
func Storagef(module, format string, args ...interface{}) *PrepError {
	return Newf(module, CategoryStorage, format, args...)
}

// Serializationf creates a serialization error with formatted message
func Serializationf(module, format string, args ...interface{}) *PrepError {
	return Newf(module, CategorySerialization, format, args...)
}

// Featurization creates a recoverable per-sample featurization error
func Featurization(module, message string) *PrepError {
	return &PrepError{
		Module:      module,
		Message:     message,
		Category:    CategoryFeaturization,
		Context:     make(map[string]interface{}),
		Recoverable: true,
	}
}

// Featurizationf creates a recoverable per-sample featurization error with formatted message
func Featurizationf(module, format string, args ...interface{}) *PrepError {
	return &PrepError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		Category:    CategoryFeaturization,
		Context:     make(map[string]interface{}),
		Recoverable: true,
	}
}

// Validationf creates a validation error with formatted message
func Validationf(module, format string, args ...interface{}) *PrepError {
	return Newf(module, CategoryValidation, format, args...)
}

// Internalf creates an internal error with formatted message
func Internalf(module, format string, args ...interface{}) *PrepError {
	return Newf(module, CategoryInternal, format, args...)
}

// Configf creates a configuration error with formatted message
func Configf(module, format string, args ...interface{}) *PrepError {
	return Newf(module, CategoryConfig, format, args...)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, module, message string) *PrepError {
	if err == nil {
		return nil
	}

	// If it's already a PrepError, preserve its category and recoverability
	if prepErr, ok := err.(*PrepError); ok {
		return &PrepError{
			Category:    prepErr.Category,
			Module:      module,
			Operation:   prepErr.Operation,
			Message:     message,
			Cause:       prepErr,
			Context:     make(map[string]interface{}),
			Recoverable: prepErr.Recoverable,
		}
	}

	// For foreign errors, categorize as internal by default
	return &PrepError{
		Category: CategoryInternal,
		Module:   module,
		Message:  message,
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, module, format string, args ...interface{}) *PrepError {
	return Wrap(err, module, fmt.Sprintf(format, args...))
}

// WrapAs wraps an existing error under an explicit category
func WrapAs(err error, category ErrorCategory, module, format string, args ...interface{}) *PrepError {
	if err == nil {
		return nil
	}
	return &PrepError{
		Category: category,
		Module:   module,
		Message:  fmt.Sprintf(format, args...),
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var prepErr *PrepError
	if errors.As(err, &prepErr) {
		return prepErr.Category == category
	}
	return false
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var prepErr *PrepError
	if errors.As(err, &prepErr) {
		return prepErr.Recoverable
	}
	return false
}

// GetModule returns the module name from a PrepError
func GetModule(err error) string {
	var prepErr *PrepError
	if errors.As(err, &prepErr) {
		return prepErr.Module
	}
	return ""
}

// GetCategory returns the category from a PrepError
func GetCategory(err error) ErrorCategory {
	var prepErr *PrepError
	if errors.As(err, &prepErr) {
		return prepErr.Category
	}
	return CategoryInternal
}
