package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidLat     ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon     ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidImage   ErrorCode = "validation_invalid_image"
	ErrCodeValidationInvalidCrop    ErrorCode = "validation_invalid_crop"
	ErrCodeValidationInvalidRegion  ErrorCode = "validation_invalid_region"
	ErrCodeValidationInvalidWindow  ErrorCode = "validation_invalid_window"
	ErrCodeValidationInvalidPage    ErrorCode = "validation_invalid_pagination"
	ErrCodeValidationInvalidPayload ErrorCode = "validation_invalid_payload"

	// Auth (401)
	ErrCodeAuthAccountMissing ErrorCode = "auth_account_missing"

	// Not Found (404)
	ErrCodeNotFoundRegion ErrorCode = "not_found_region"
	ErrCodeNotFoundRecord ErrorCode = "not_found_record"

	// Rate Limit (429)
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB           ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected   ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamTransport    ErrorCode = "upstream_transport"
	ErrCodeUpstreamRejected     ErrorCode = "upstream_rejected"
	ErrCodeUpstreamMalformed    ErrorCode = "upstream_malformed"
	ErrCodeUpstreamUnauthorized ErrorCode = "upstream_unauthorized"
	ErrCodeUpstreamUnavailable  ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited  ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamInference    ErrorCode = "upstream_inference_failed"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeRateLimited):
		return http.StatusTooManyRequests
	case s == string(ErrCodeUpstreamTransport):
		return http.StatusGatewayTimeout
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCategory is the coarse failure taxonomy surfaced to callers of the
// enrichment and inference pipeline.
type ErrorCategory string

const (
	CategoryNone           ErrorCategory = ""
	CategoryTransport      ErrorCategory = "transport"
	CategoryServerRejected ErrorCategory = "server_rejected"
	CategoryMalformed      ErrorCategory = "malformed"
	CategoryUnauthorized   ErrorCategory = "unauthorized"
)

// Category returns the taxonomy bucket for an upstream error code.
// Non-upstream codes report CategoryNone.
func (c ErrorCode) Category() ErrorCategory {
	switch c {
	case ErrCodeUpstreamTransport, ErrCodeUpstreamUnavailable:
		return CategoryTransport
	case ErrCodeUpstreamRejected, ErrCodeUpstreamRateLimited:
		return CategoryServerRejected
	case ErrCodeUpstreamMalformed:
		return CategoryMalformed
	case ErrCodeUpstreamUnauthorized:
		return CategoryUnauthorized
	default:
		return CategoryNone
	}
}

// AppError is the standard application error type used throughout the platform.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// categorized is implemented by errors that know their own taxonomy bucket
// (external.Failure does).
type categorized interface {
	Category() ErrorCategory
}

// CategoryOf walks the error chain and returns the first taxonomy bucket it
// finds. Errors outside the upstream taxonomy report CategoryNone.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return CategoryNone
	}
	var c categorized
	if errors.As(err, &c) {
		if cat := c.Category(); cat != CategoryNone {
			return cat
		}
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code.Category()
	}
	return CategoryNone
}
