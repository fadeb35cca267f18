package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSdsError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeUploadFailed, "upload failed")
	expected := "[STORAGE:UPLOAD_FAILED] upload failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSdsError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSdsError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryStorage, CodeCatalogFailed, "save type", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestSdsError_Is(t *testing.T) {
	err1 := Conflict(CodeDuplicateKey, "key %d", 1)
	err2 := Conflict(CodeDuplicateKey, "key %d", 2)
	err3 := Conflict(CodeTypeInUse, "type in use")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
	if !errors.Is(err3, ErrConflict) {
		t.Error("category sentinel should match any code")
	}
	if errors.Is(err3, ErrNotFound) {
		t.Error("conflict should not match not found")
	}
}

func TestEmptyStreamMatchesNotFound(t *testing.T) {
	err := fmt.Errorf("get last: %w", EmptyStream("s1"))

	if !errors.Is(err, ErrEmptyStream) {
		t.Error("expected EmptyStream sentinel to match")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("empty stream should also be a not found condition")
	}
	if errors.Is(NotFound(CodeStreamNotFound, "missing"), ErrEmptyStream) {
		t.Error("not found must not match empty stream")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryConflict, CodeDuplicateKey, false},
		{ErrCategoryNotFound, CodeStreamNotFound, false},
		{ErrCategoryInvalidDefinition, CodeInvalidFilter, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidDefinition(CodeInvalidType, "no key"))
	if GetCategory(err) != ErrCategoryInvalidDefinition {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryInvalidDefinition)
	}
	if GetCode(err) != CodeInvalidType {
		t.Errorf("got %q, want %q", GetCode(err), CodeInvalidType)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-SdsError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-SdsError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	base := NotFound(CodeEventNotFound, "no event")
	detailed := base.WithDetails(map[string]interface{}{"key": "3"})

	if base.Details != nil {
		t.Error("WithDetails should not mutate the original")
	}
	if detailed.Details["key"] != "3" {
		t.Errorf("details not copied: %v", detailed.Details)
	}
	if !errors.Is(detailed, base) {
		t.Error("detailed copy should still match the original")
	}
}
