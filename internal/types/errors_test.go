package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidLat,
		Message: "Latitude must be between -90 and 90",
	}

	expected := "validation_invalid_latitude: Latitude must be between -90 and 90"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorErrorsAs verifies that errors.As can extract AppError from an error chain.
func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeAuthAccountMissing, "account header missing", nil)
	wrappedErr := fmt.Errorf("handler failed: %w", appErr)

	var target *AppError
	if !errors.As(wrappedErr, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeAuthAccountMissing {
		t.Errorf("extracted Code = %q, want %q", target.Code, ErrCodeAuthAccountMissing)
	}
}

func TestAppErrorErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	appErr := NewAppError(ErrCodeInternalUnexpected, "unexpected failure", sentinel)

	if !errors.Is(appErr, sentinel) {
		t.Error("errors.Is should find the sentinel through AppError.Unwrap")
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidLat, http.StatusBadRequest},
		{ErrCodeValidationInvalidWindow, http.StatusBadRequest},
		{ErrCodeAuthAccountMissing, http.StatusUnauthorized},
		{ErrCodeNotFoundRegion, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamTransport, http.StatusGatewayTimeout},
		{ErrCodeUpstreamRejected, http.StatusBadGateway},
		{ErrCodeUpstreamInference, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetailsDoesNotMutateOriginal(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeValidationInvalidRegion, "unknown region", nil,
		map[string]any{"region": "Atlantis"})
	derived := orig.WithDetails(map[string]any{"known": 8})

	if _, ok := orig.Details["known"]; ok {
		t.Error("WithDetails mutated the receiver's details")
	}
	if derived.Details["region"] != "Atlantis" || derived.Details["known"] != 8 {
		t.Errorf("merged details = %v", derived.Details)
	}
}

type fakeCategorized struct{ cat ErrorCategory }

func (f fakeCategorized) Error() string          { return "fake" }
func (f fakeCategorized) Category() ErrorCategory { return f.cat }

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, CategoryNone},
		{"plain error", errors.New("boom"), CategoryNone},
		{"app error transport", NewAppError(ErrCodeUpstreamTransport, "timeout", nil), CategoryTransport},
		{"app error rate limited", NewAppError(ErrCodeUpstreamRateLimited, "429", nil), CategoryServerRejected},
		{"app error malformed", NewAppError(ErrCodeUpstreamMalformed, "bad json", nil), CategoryMalformed},
		{"app error unauthorized", NewAppError(ErrCodeUpstreamUnauthorized, "401", nil), CategoryUnauthorized},
		{"validation error", NewAppError(ErrCodeValidationInvalidLat, "bad", nil), CategoryNone},
		{"categorized wins over wrapper code",
			NewAppError(ErrCodeUpstreamInference, "inference failed", fakeCategorized{CategoryMalformed}),
			CategoryMalformed},
		{"wrapped categorized", fmt.Errorf("ctx: %w", fakeCategorized{CategoryTransport}), CategoryTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
