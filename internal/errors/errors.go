// Package errors provides structured error values for the sds store.
// Every error carries a category, a code, a message and a retryable flag so
// that adapters can map failures to transport status codes without string
// matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	ErrCategoryNotFound          ErrorCategory = "NOT_FOUND"
	ErrCategoryConflict          ErrorCategory = "CONFLICT"
	ErrCategoryInvalidDefinition ErrorCategory = "INVALID_DEFINITION"
	ErrCategoryEmptyStream       ErrorCategory = "EMPTY_STREAM"
	ErrCategoryStorage           ErrorCategory = "STORAGE"
	ErrCategoryInternal          ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Not found codes
	CodeTypeNotFound     = "TYPE_NOT_FOUND"
	CodeStreamNotFound   = "STREAM_NOT_FOUND"
	CodeViewNotFound     = "VIEW_NOT_FOUND"
	CodeEventNotFound    = "EVENT_NOT_FOUND"
	CodeMetadataNotFound = "METADATA_NOT_FOUND"
	CodeIndexNotFound    = "INDEX_NOT_FOUND"

	// Conflict codes
	CodeDuplicateKey     = "DUPLICATE_KEY"
	CodeTypeInUse        = "TYPE_IN_USE"
	CodeViewInUse        = "VIEW_IN_USE"
	CodeDefinitionDiffer = "DEFINITION_MISMATCH"

	// Invalid definition codes
	CodeInvalidType     = "INVALID_TYPE"
	CodeInvalidEvent    = "INVALID_EVENT"
	CodeInvalidStream   = "INVALID_STREAM"
	CodeInvalidView     = "INVALID_VIEW"
	CodeInvalidIndex    = "INVALID_INDEX"
	CodeInvalidFilter   = "INVALID_FILTER"
	CodeInvalidQuery    = "INVALID_QUERY"
	CodeKeyImmutable    = "KEY_IMMUTABLE"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"

	// Empty stream codes
	CodeNoEvents = "NO_EVENTS"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeCatalogFailed  = "CATALOG_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for category-only matching with errors.Is.
var (
	ErrNotFound          = &SdsError{Category: ErrCategoryNotFound}
	ErrConflict          = &SdsError{Category: ErrCategoryConflict}
	ErrInvalidDefinition = &SdsError{Category: ErrCategoryInvalidDefinition}
	ErrEmptyStream       = &SdsError{Category: ErrCategoryEmptyStream}
)

// SdsError is the structured error type used throughout the system.
type SdsError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *SdsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SdsError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a code
// matches on category alone. An empty stream is also a not found condition.
func (e *SdsError) Is(target error) bool {
	var t *SdsError
	if !errors.As(target, &t) {
		return false
	}
	if t.Code == "" {
		if e.Category == t.Category {
			return true
		}
		return e.Category == ErrCategoryEmptyStream && t.Category == ErrCategoryNotFound
	}
	return e.Category == t.Category && e.Code == t.Code
}

// New creates a new SdsError.
func New(category ErrorCategory, code, message string) *SdsError {
	return &SdsError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf is New with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *SdsError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new SdsError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SdsError {
	return &SdsError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SdsError) WithDetails(details map[string]interface{}) *SdsError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *SdsError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an SdsError.
func GetCategory(err error) ErrorCategory {
	var se *SdsError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an SdsError.
func GetCode(err error) string {
	var se *SdsError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NotFound(code, format string, args ...interface{}) *SdsError {
	return Newf(ErrCategoryNotFound, code, format, args...)
}

func Conflict(code, format string, args ...interface{}) *SdsError {
	return Newf(ErrCategoryConflict, code, format, args...)
}

func InvalidDefinition(code, format string, args ...interface{}) *SdsError {
	return Newf(ErrCategoryInvalidDefinition, code, format, args...)
}

func EmptyStream(streamID string) *SdsError {
	return Newf(ErrCategoryEmptyStream, CodeNoEvents, "stream %q has no events", streamID)
}

func NewStorageError(code, message string, cause error) *SdsError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *SdsError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
