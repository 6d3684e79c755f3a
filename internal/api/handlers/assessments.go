package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cropcare/internal/assessment"
	"cropcare/internal/core"
	"cropcare/internal/types"
)

// multipartOverhead is the allowance for form fields on top of the image.
const multipartOverhead = 1 << 20

// AssessmentService runs one inference plus enrichment cycle.
// *assessment.Service satisfies it.
type AssessmentService interface {
	Assess(ctx context.Context, in assessment.Input) (*assessment.Result, error)
}

// AssessmentHandler accepts image submissions.
type AssessmentHandler struct {
	service   AssessmentService
	resolver  LocationResolver
	validator *core.Validator
	limiter   func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewAssessmentHandler creates a new AssessmentHandler. limiter wraps the
// submission route (see core.Server.RateLimit); nil leaves it unlimited.
func NewAssessmentHandler(
	svc AssessmentService,
	resolver LocationResolver,
	val *core.Validator,
	limiter func(http.Handler) http.Handler,
	logger *slog.Logger,
) *AssessmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentHandler{
		service:   svc,
		resolver:  resolver,
		validator: val,
		limiter:   limiter,
		logger:    logger,
	}
}

// RegisterRoutes mounts POST /assessments.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	if h.limiter != nil {
		r = r.With(h.limiter)
	}
	r.Post("/assessments", h.HandleCreate)
}

// assessmentForm is the non-file part of the multipart submission.
type assessmentForm struct {
	CropType  string `form:"crop_type" validate:"required,crop_type"`
	CropStage string `form:"crop_stage" validate:"required,crop_stage"`
	Save      bool   `form:"save"`
	Location  locationParams
}

// Warnings implements core.Warner.
func (f assessmentForm) Warnings() []string {
	return f.Location.Warnings()
}

// AssessmentResponse is the body of a successful submission.
type AssessmentResponse struct {
	Assessment *types.Assessment `json:"assessment"`
	RecordID   string            `json:"record_id,omitempty"`
	// PersistError is set when save was requested and failed. The
	// assessment is still valid.
	PersistError *core.ErrorDetail `json:"persist_error,omitempty"`
}

// HandleCreate handles POST /v1/assessments.
//
// Multipart fields: file (required), crop_type, crop_stage, and optionally
// lat/lon/acc or region, and save. Inference failures are returned as
// upstream errors; enrichment failures only leave fields absent. A failed
// save still returns 200 with persist_error and a warning.
func (h *AssessmentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, types.MaxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(types.MaxImageBytes); err != nil {
		core.Error(w, r, multipartError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form, err := readAssessmentForm(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	result := h.validator.ValidateStructWithWarnings(form)
	if err := result.Err(); err != nil {
		core.Error(w, r, err)
		return
	}

	image, filename, err := readImage(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	account, hasAccount := types.GetAccount(r.Context())
	if form.Save && !hasAccount {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthAccountMissing,
			core.AccountHeader+" header is required to save history", nil))
		return
	}

	loc := form.Location
	coord, source, err := h.resolver.Resolve(loc.Lat, loc.Lon, loc.Acc, loc.Region)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	crop, _ := types.ParseCropType(form.CropType)
	stage, _ := types.ParseCropStage(form.CropStage)
	res, err := h.service.Assess(r.Context(), assessment.Input{
		Account:    account,
		Image:      image,
		Filename:   filename,
		CropType:   crop,
		CropStage:  stage,
		Coordinate: &coord,
		Source:     source,
		Save:       form.Save,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	body := AssessmentResponse{Assessment: res.Assessment, RecordID: string(res.RecordID)}
	warnings := result.Warnings
	if res.PersistError != nil {
		detail := persistErrorDetail(r, res.PersistError)
		body.PersistError = &detail
		warnings = append(warnings, "the assessment could not be saved to history")
	}

	resp := core.APIResponse{Data: body}
	if len(warnings) > 0 {
		resp.Meta = &types.ResponseMeta{Warnings: warnings}
	}
	core.JSON(w, r, http.StatusOK, resp)
}

func readAssessmentForm(r *http.Request) (assessmentForm, error) {
	var f assessmentForm
	f.CropType = strings.TrimSpace(r.FormValue("crop_type"))
	f.CropStage = strings.TrimSpace(r.FormValue("crop_stage"))

	var err error
	if f.Save, err = optionalBool(r.FormValue("save"), "save"); err != nil {
		return f, err
	}
	if f.Location, err = readLocation(r.FormValue); err != nil {
		return f, err
	}
	return f, nil
}

func readImage(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeValidationMissingField, "file is required", nil)
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, types.MaxImageBytes+1))
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeValidationInvalidImage, "image could not be read", err)
	}
	if err := types.ValidateImage(image); err != nil {
		return nil, "", err
	}
	return image, header.Filename, nil
}

func multipartError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidImage, "image exceeds size limit", err,
			map[string]any{"max_bytes": types.MaxImageBytes})
	}
	return types.NewAppError(types.ErrCodeValidationInvalidPayload, "request must be multipart/form-data", err)
}

func persistErrorDetail(r *http.Request, err error) core.ErrorDetail {
	detail, _ := core.NewErrorDetail(r, err, types.ErrCodeUpstreamUnavailable, "history store unavailable")
	return detail
}
