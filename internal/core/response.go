package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cropcare/internal/types"
)

// maxRequestBodySize caps JSON request bodies. Image uploads have their own
// limit (types.MaxImageBytes) enforced by the assessment handler.
const maxRequestBodySize = 1 << 20

// APIResponse is the success envelope. Meta carries degradation warnings
// ("weather is temporarily unavailable") and pagination.
type APIResponse struct {
	Data interface{}         `json:"data,omitempty"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the error envelope.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing description of a failure. It is also
// embedded in successful assessment responses when saving to history failed.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// NewErrorDetail describes err for the client and returns the matching HTTP
// status. An error that does not wrap a *types.AppError is reported as
// fallback/fallbackMessage so transport and driver text never leaks.
func NewErrorDetail(r *http.Request, err error, fallback types.ErrorCode, fallbackMessage string) (ErrorDetail, int) {
	detail := ErrorDetail{RequestID: types.GetRequestID(r.Context())}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
		return detail, appErr.HTTPStatus()
	}

	detail.Code = string(fallback)
	detail.Message = fallbackMessage
	return detail, fallback.HTTPStatus()
}

// JSON marshals data and writes it with status. A marshal failure becomes a
// 500 error envelope instead.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to marshal response",
			RequestID: types.GetRequestID(r.Context()),
		}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as an error envelope. AppErrors keep their code, message
// and details; anything else is a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	detail, status := NewErrorDetail(r, err, types.ErrCodeInternalUnexpected, "an unexpected error occurred")
	JSON(w, r, status, APIErrorResponse{Error: detail})
}

// errCodeValidationInvalidJSON is only produced by DecodeJSON.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// DecodeJSON strictly decodes a single JSON value from the request body into
// dst: at most 1 MB, no unknown fields, nothing trailing. Every failure is a
// validation_invalid_json AppError (400). w is needed by http.MaxBytesReader.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must contain a single JSON object", nil)
	}
	return nil
}

func mapDecodeError(err error) *types.AppError {
	var (
		maxBytesErr      *http.MaxBytesError
		syntaxErr        *json.SyntaxError
		unmarshalTypeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not exceed 1MB", err)
	case errors.As(err, &syntaxErr):
		return types.NewAppError(errCodeValidationInvalidJSON, "malformed JSON in request body", err)
	case errors.As(err, &unmarshalTypeErr):
		return types.NewAppErrorWithDetails(errCodeValidationInvalidJSON, "invalid value for field", err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			})
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return types.NewAppError(errCodeValidationInvalidJSON, "unknown field in request body: "+field, err)
	case errors.Is(err, io.EOF):
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not be empty", err)
	default:
		return types.NewAppError(errCodeValidationInvalidJSON, "invalid JSON in request body", err)
	}
}
