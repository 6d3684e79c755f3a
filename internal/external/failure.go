package external

import (
	"errors"
	"fmt"
	"net/http"

	"cropcare/internal/types"
)

// FailureKind is the transport-level reason a provider call did not produce
// a usable value.
type FailureKind string

const (
	KindTimeout     FailureKind = "timeout"
	KindNetwork     FailureKind = "network"
	KindHTTPStatus  FailureKind = "http_status"
	KindDecode      FailureKind = "decode"
	KindCircuitOpen FailureKind = "circuit_open"
	// KindCanceled means the caller abandoned the call, usually because the
	// coordinate it was fetched for has been superseded.
	KindCanceled FailureKind = "canceled"
	// KindRejected is an application-level rejection carried in a 2xx body.
	KindRejected FailureKind = "rejected"
)

// Failure is the single error type returned by provider clients.
type Failure struct {
	Provider   types.Provider
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("%s: %s %d", f.Provider, f.Kind, f.StatusCode)
	default:
		if f.Err != nil {
			return fmt.Sprintf("%s: %s: %v", f.Provider, f.Kind, f.Err)
		}
		return fmt.Sprintf("%s: %s", f.Provider, f.Kind)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Category maps the failure onto the caller-facing taxonomy.
func (f *Failure) Category() types.ErrorCategory {
	switch f.Kind {
	case KindTimeout, KindNetwork, KindCircuitOpen, KindCanceled:
		return types.CategoryTransport
	case KindDecode:
		return types.CategoryMalformed
	case KindRejected:
		return types.CategoryServerRejected
	case KindHTTPStatus:
		if f.StatusCode == http.StatusUnauthorized || f.StatusCode == http.StatusForbidden {
			return types.CategoryUnauthorized
		}
		return types.CategoryServerRejected
	default:
		return types.CategoryTransport
	}
}

// AppError converts the failure into the API error envelope.
func (f *Failure) AppError() *types.AppError {
	var code types.ErrorCode
	switch f.Category() {
	case types.CategoryTransport:
		code = types.ErrCodeUpstreamTransport
	case types.CategoryMalformed:
		code = types.ErrCodeUpstreamMalformed
	case types.CategoryUnauthorized:
		code = types.ErrCodeUpstreamUnauthorized
	default:
		code = types.ErrCodeUpstreamRejected
		if f.StatusCode == http.StatusTooManyRequests {
			code = types.ErrCodeUpstreamRateLimited
		}
	}
	details := map[string]any{"provider": string(f.Provider), "kind": string(f.Kind)}
	if f.StatusCode != 0 {
		details["status_code"] = f.StatusCode
	}
	return types.NewAppErrorWithDetails(code, fmt.Sprintf("%s unavailable", f.Provider), f, details)
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// LogAttrs returns slog key/value pairs describing err, for fallback logging.
func LogAttrs(err error) []any {
	f, ok := AsFailure(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"provider", string(f.Provider), "failure_kind", string(f.Kind), "category", string(f.Category())}
	if f.StatusCode != 0 {
		attrs = append(attrs, "status_code", f.StatusCode)
	}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err.Error())
	}
	return attrs
}
