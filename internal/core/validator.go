package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cropcare/internal/types"
)

// Validator wraps go-playground/validator and registers the domain tags
// used by request DTOs:
//
//	crop_type   one of the supported crops
//	crop_stage  one of the supported growth stages
//	window      an activity window (7 or 14 days)
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError is one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult carries blocking errors and non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether there are no blocking errors.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Warner is implemented by DTOs that can flag suspicious but acceptable
// input (e.g. a very coarse GPS accuracy).
type Warner interface {
	Warnings() []string
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names (query, form or json tag).
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "form", "json"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	mustRegister(v, "crop_type", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseCropType(fl.Field().String())
		return ok
	})
	mustRegister(v, "crop_stage", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseCropStage(fl.Field().String())
		return ok
	})
	mustRegister(v, "window", func(fl validator.FieldLevel) bool {
		return types.ValidateActivityWindow(int(fl.Field().Int())) == nil
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

// ValidateStruct validates s and returns an *types.AppError whose code
// reflects the first failure. All failures are listed under the
// "validation_errors" detail.
func (v *Validator) ValidateStruct(s any) error {
	return v.ValidateStructWithWarnings(s).Err()
}

// Err converts blocking errors into an *types.AppError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	first := r.Errors[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, nil,
		map[string]any{"validation_errors": r.Errors})
}

// ValidateStructWithWarnings returns every failure plus any warnings the
// DTO reports about itself.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, toValidationError(fe))
		}
	default:
		v.logger.Error("validator misuse", "error", err, "type", fmt.Sprintf("%T", s))
		result.Errors = append(result.Errors, ValidationError{
			Code:    string(types.ErrCodeValidationInvalidPayload),
			Message: "request could not be validated",
		})
	}

	if w, ok := s.(Warner); ok && result.IsValid() {
		result.Warnings = w.Warnings()
	}
	return result
}

func toValidationError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	var code types.ErrorCode
	var msg string
	switch fe.Tag() {
	case "required", "required_with", "required_without":
		code = types.ErrCodeValidationMissingField
		msg = field + " is required"
	case "latitude":
		code = types.ErrCodeValidationInvalidLat
		msg = field + " must be between -90 and 90"
	case "longitude":
		code = types.ErrCodeValidationInvalidLon
		msg = field + " must be between -180 and 180"
	case "crop_type", "crop_stage":
		code = types.ErrCodeValidationInvalidCrop
		msg = fmt.Sprintf("%s %q is not supported", field, fe.Value())
	case "window":
		code = types.ErrCodeValidationInvalidWindow
		msg = field + " must be 7 or 14"
	default:
		code = types.ErrCodeValidationInvalidPayload
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
		}
	}
	return ValidationError{Field: field, Code: string(code), Message: msg}
}
