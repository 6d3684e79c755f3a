package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cropcare/internal/core"
	"cropcare/internal/types"
)

// defaultActivityDays is the window used when ?days is omitted.
const defaultActivityDays = 7

// HistoryService is the history use-case layer. *history.Service satisfies
// it.
type HistoryService interface {
	List(ctx context.Context, q types.HistoryQuery) ([]types.HistoryRecord, types.PageInfo, error)
	Save(ctx context.Context, rec types.NewHistoryRecord) (types.RecordID, error)
	Activity(ctx context.Context, account string, days int) ([]types.DayBucket, error)
	Severity(ctx context.Context, account string) (types.SeverityDistribution, error)
}

// HistoryHandler serves an account's saved assessments and the dashboard
// insights derived from them. Every route requires X-Account-Id.
type HistoryHandler struct {
	service   HistoryService
	validator *core.Validator
	logger    *slog.Logger
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(svc HistoryService, val *core.Validator, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{service: svc, validator: val, logger: logger}
}

// RegisterRoutes mounts the /history endpoints.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/activity", h.HandleActivity)
		r.Get("/severity", h.HandleSeverity)
	})
}

type listHistoryQuery struct {
	Limit  int    `query:"limit" validate:"gte=0"`
	Offset int    `query:"offset" validate:"gte=0"`
	Search string `query:"q" validate:"max=100"`
}

// HandleList handles GET /v1/history?limit&offset&q. Limits above the
// maximum page size are clamped.
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	account, err := core.RequireAccount(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	var params listHistoryQuery
	if params.Limit, err = optionalInt(q.Get("limit"), "limit", types.DefaultPageSize, types.ErrCodeValidationInvalidPage); err != nil {
		core.Error(w, r, err)
		return
	}
	if params.Offset, err = optionalInt(q.Get("offset"), "offset", 0, types.ErrCodeValidationInvalidPage); err != nil {
		core.Error(w, r, err)
		return
	}
	params.Search = strings.TrimSpace(q.Get("q"))
	if err := h.validator.ValidateStruct(params); err != nil {
		core.Error(w, r, err)
		return
	}

	records, info, err := h.service.List(r.Context(), types.HistoryQuery{
		Account: account,
		Search:  params.Search,
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if records == nil {
		records = []types.HistoryRecord{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: records,
		Meta: &types.ResponseMeta{Pagination: &info},
	})
}

// CreateHistoryRequest is the body of POST /v1/history: an assessment
// summary recorded by the client.
type CreateHistoryRequest struct {
	CropType    string     `json:"crop_type" validate:"required,crop_type"`
	Disease     string     `json:"disease" validate:"required,max=200"`
	Severity    string     `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
	Temperature *float64   `json:"temperature,omitempty" validate:"omitempty,gte=-60,lte=70"`
	Humidity    *float64   `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	Location    string     `json:"location,omitempty" validate:"max=300"`
	Lat         *float64   `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon         *float64   `json:"lon,omitempty" validate:"omitempty,longitude"`
	RecordDate  *time.Time `json:"record_date,omitempty"`
}

// HandleCreate handles POST /v1/history.
func (h *HistoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	account, err := core.RequireAccount(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateHistoryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"lat and lon must be provided together", nil))
		return
	}

	crop, _ := types.ParseCropType(req.CropType)
	rec := types.NewHistoryRecord{
		Account:     account,
		CropType:    string(crop),
		Disease:     strings.TrimSpace(req.Disease),
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Location:    strings.TrimSpace(req.Location),
		Lat:         req.Lat,
		Lon:         req.Lon,
	}
	if req.Severity != "" {
		sev, _ := types.ParseRiskLevel(req.Severity)
		rec.Severity = &sev
	}
	if req.RecordDate != nil {
		rec.CapturedAt = req.RecordDate.UTC()
	}

	id, err := h.service.Save(r.Context(), rec)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{
		Data: map[string]string{"id": string(id)},
	})
}

type activityQuery struct {
	Days int `query:"days" validate:"window"`
}

// HandleActivity handles GET /v1/history/activity?days=7|14.
func (h *HistoryHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	account, err := core.RequireAccount(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var params activityQuery
	params.Days, err = optionalInt(r.URL.Query().Get("days"), "days", defaultActivityDays, types.ErrCodeValidationInvalidWindow)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(params); err != nil {
		core.Error(w, r, err)
		return
	}

	buckets, err := h.service.Activity(r.Context(), account, params.Days)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: buckets})
}

// SeverityResponse is the body of GET /v1/history/severity.
type SeverityResponse struct {
	types.SeverityDistribution
	Total int `json:"total"`
	// Method documents that severities are keyword estimates.
	Method string `json:"method"`
}

// HandleSeverity handles GET /v1/history/severity.
func (h *HistoryHandler) HandleSeverity(w http.ResponseWriter, r *http.Request) {
	account, err := core.RequireAccount(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	dist, err := h.service.Severity(r.Context(), account)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SeverityResponse{
		SeverityDistribution: dist,
		Total:                dist.Total(),
		Method:               "keyword_heuristic",
	}})
}
