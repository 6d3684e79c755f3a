package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcare/internal/types"
)

func requestWithID(method, id string, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "/v1/history", nil)
	} else {
		r = httptest.NewRequest(method, "/v1/history", strings.NewReader(body))
	}
	if id != "" {
		r = r.WithContext(types.WithRequestID(r.Context(), id))
	}
	return r
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

// --- JSON ---

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, requestWithID(http.MethodGet, "", ""), http.StatusOK, APIResponse{
		Data: types.SeverityDistribution{Low: 2, High: 1},
		Meta: &types.ResponseMeta{Warnings: []string{"air quality is temporarily unavailable"}},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"data":{"low":2,"medium":0,"high":1},
		  "meta":{"warnings":["air quality is temporarily unavailable"]}}`,
		rec.Body.String())
}

func TestJSON_StatusPassthrough(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusAccepted, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, requestWithID(http.MethodPost, "", ""), status, map[string]string{"id": "rec_1"})
			assert.Equal(t, status, rec.Code)
		})
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, requestWithID(http.MethodGet, "req-marshal", ""), http.StatusOK, make(chan int))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), detail.Code)
	assert.Equal(t, "req-marshal", detail.RequestID)
}

// --- Error ---

func TestError_AppErrorStatuses(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrCodeValidationInvalidLat, http.StatusBadRequest},
		{types.ErrCodeValidationInvalidWindow, http.StatusBadRequest},
		{types.ErrCodeAuthAccountMissing, http.StatusUnauthorized},
		{types.ErrCodeNotFoundRegion, http.StatusNotFound},
		{types.ErrCodeRateLimited, http.StatusTooManyRequests},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
		{types.ErrCodeUpstreamInference, http.StatusBadGateway},
		{types.ErrCodeUpstreamTransport, http.StatusGatewayTimeout},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, requestWithID(http.MethodGet, "req-1", ""),
				types.NewAppError(tc.code, "boom", errors.New("internal cause")))

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			detail := decodeErrorBody(t, rec)
			assert.Equal(t, string(tc.code), detail.Code)
			assert.Equal(t, "boom", detail.Message)
			assert.Equal(t, "req-1", detail.RequestID)
			assert.NotContains(t, rec.Body.String(), "internal cause")
		})
	}
}

func TestError_Details(t *testing.T) {
	err := types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCrop, "unknown crop type", nil,
		map[string]any{"crop_type": "cotton"})

	rec := httptest.NewRecorder()
	Error(rec, requestWithID(http.MethodPost, "", ""), err)

	detail := decodeErrorBody(t, rec)
	assert.Equal(t, map[string]any{"crop_type": "cotton"}, detail.Details)
}

func TestError_WrappedAppError(t *testing.T) {
	inner := types.NewAppError(types.ErrCodeNotFoundRecord, "history record not found", nil)

	rec := httptest.NewRecorder()
	Error(rec, requestWithID(http.MethodGet, "", ""), fmt.Errorf("listing: %w", inner))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundRecord), decodeErrorBody(t, rec).Code)
}

func TestError_GenericErrorIsNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, requestWithID(http.MethodGet, "", ""), errors.New("dial tcp 10.0.0.5:5432: refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), detail.Code)
	assert.Equal(t, "an unexpected error occurred", detail.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Empty(t, detail.RequestID)
}

func TestNewErrorDetail_Fallback(t *testing.T) {
	r := requestWithID(http.MethodPost, "req-9", "")

	detail, status := NewErrorDetail(r, errors.New("pq: relation missing"), types.ErrCodeUpstreamUnavailable, "history store unavailable")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, ErrorDetail{
		Code:      string(types.ErrCodeUpstreamUnavailable),
		Message:   "history store unavailable",
		RequestID: "req-9",
	}, detail)

	detail, status = NewErrorDetail(r, types.NewAppError(types.ErrCodeInternalDB, "failed to save history record", nil),
		types.ErrCodeUpstreamUnavailable, "history store unavailable")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, string(types.ErrCodeInternalDB), detail.Code)
}

// --- DecodeJSON ---

type historyBody struct {
	CropType string   `json:"crop_type"`
	Disease  string   `json:"disease"`
	Humidity *float64 `json:"humidity,omitempty"`
	Location *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"location,omitempty"`
}

func TestDecodeJSON_Success(t *testing.T) {
	r := requestWithID(http.MethodPost, "", `{"crop_type":"rice","disease":"Blast","humidity":88.5,"location":{"lat":24.9,"lon":91.9}}`)

	var dst historyBody
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &dst))

	assert.Equal(t, "rice", dst.CropType)
	require.NotNil(t, dst.Humidity)
	assert.Equal(t, 88.5, *dst.Humidity)
	require.NotNil(t, dst.Location)
	assert.Equal(t, 91.9, dst.Location.Lon)
}

func TestDecodeJSON_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty", "", "request body must not be empty"},
		{"whitespace only", "   \n\t ", "request body must not be empty"},
		{"syntax error", `{"crop_type":`, ""},
		{"unknown field", `{"crop_type":"rice","org_id":"x"}`, "unknown field in request body"},
		{"type mismatch", `{"crop_type":42}`, "invalid value for field"},
		{"array body", `[{"crop_type":"rice"}]`, "invalid value for field"},
		{"two values", `{"crop_type":"rice"}{"crop_type":"wheat"}`, "single JSON object"},
		{"too large", `{"disease":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, "must not exceed 1MB"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/history", bytes.NewBufferString(tc.body))

			var dst historyBody
			err := DecodeJSON(httptest.NewRecorder(), r, &dst)
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
			if tc.message != "" {
				assert.Contains(t, appErr.Message, tc.message)
			}
		})
	}
}

func TestDecodeJSON_TypeMismatchDetails(t *testing.T) {
	r := requestWithID(http.MethodPost, "", `{"crop_type":"rice","humidity":"wet"}`)

	var dst historyBody
	err := DecodeJSON(httptest.NewRecorder(), r, &dst)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "humidity", appErr.Details["field"])
	assert.Equal(t, "float64", appErr.Details["expected"])
}

func TestDecodeJSON_NilBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/history", nil)

	var dst historyBody
	err := DecodeJSON(httptest.NewRecorder(), r, &dst)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
}
