// Package assessment runs the end-to-end flow behind one user action: crop
// image inference and location enrichment in parallel, then an optional
// history save.
//
// The two halves fail differently. Any inference error aborts the action
// and is returned to the caller; there is no fallback label. Enrichment
// never fails the action: missing providers simply leave their fields
// absent. A failed save is reported alongside the completed assessment.
package assessment

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cropcare/internal/enrichment"
	"cropcare/internal/external"
	"cropcare/internal/telemetry"
	"cropcare/internal/types"
)

// Enricher produces the enrichment half of an assessment.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) *types.Assessment
}

// Persister saves completed assessments.
type Persister interface {
	Persist(ctx context.Context, account string, a *types.Assessment) (types.RecordID, error)
}

// Input is one assessment request.
type Input struct {
	Account   string
	Image     []byte
	Filename  string
	CropType  types.CropType
	CropStage types.CropStage

	// Coordinate is optional. Without it only inference runs. With
	// Source == types.SourceDefault it is used for enrichment only: it is
	// neither sent to the model server nor saved as the capture location.
	Coordinate *types.Coordinate
	Source     types.LocationSource

	Save bool
}

// Result is a completed assessment plus the outcome of the optional save.
type Result struct {
	Assessment *types.Assessment
	RecordID   types.RecordID
	// PersistError is set when saving was requested and failed. The
	// assessment is still valid.
	PersistError error
}

// Service coordinates inference, enrichment and persistence.
type Service struct {
	inference external.InferenceService
	enricher  Enricher
	history   Persister
	metrics   telemetry.Collector
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistory enables saving. Without it Save requests report an
// unavailable store.
func WithHistory(p Persister) Option {
	return func(s *Service) { s.history = p }
}

// WithMetrics sets the telemetry collector.
func WithMetrics(m telemetry.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(inference external.InferenceService, enricher Enricher, opts ...Option) *Service {
	s := &Service{
		inference: inference,
		enricher:  enricher,
		metrics:   telemetry.Nop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "assessment")
	return s
}

// Validate checks the request before any remote call is made.
func (in Input) Validate() error {
	if err := types.ValidateImage(in.Image); err != nil {
		return err
	}
	if _, ok := types.ParseCropType(string(in.CropType)); !ok {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCrop, "unknown crop type", nil,
			map[string]any{"crop_type": string(in.CropType)})
	}
	if _, ok := types.ParseCropStage(string(in.CropStage)); !ok {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCrop, "unknown crop stage", nil,
			map[string]any{"crop_stage": string(in.CropStage)})
	}
	if in.Coordinate != nil {
		if err := in.Coordinate.Validate(); err != nil {
			return err
		}
	}
	if in.Save && in.Account == "" {
		return types.NewAppError(types.ErrCodeAuthAccountMissing, "account is required to save history", nil)
	}
	return nil
}

// captureCoordinate is where the photo was taken, if known. The fallback
// coordinate only drives enrichment.
func (in Input) captureCoordinate() *types.Coordinate {
	if in.Source == types.SourceDefault {
		return nil
	}
	return in.Coordinate
}

// Assess runs inference and enrichment concurrently. An inference failure
// cancels the enrichment fan-out and is returned as an *types.AppError whose
// category (types.CategoryOf) reflects the upstream failure.
func (s *Service) Assess(ctx context.Context, in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		detection *types.DetectionResult
		enriched  *types.Assessment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.inference.Predict(gctx, external.InferenceRequest{
			Image:      in.Image,
			Filename:   in.Filename,
			CropType:   in.CropType,
			CropStage:  in.CropStage,
			Coordinate: in.captureCoordinate(),
		})
		if err != nil {
			return err
		}
		detection = d
		return nil
	})
	g.Go(func() error {
		enriched = s.enricher.Enrich(gctx, enrichment.Request{Coordinate: in.Coordinate, Source: in.Source})
		return nil
	})

	if err := g.Wait(); err != nil {
		s.metrics.RecordProvider(ctx, types.ProviderInference, telemetry.OutcomeFailure, types.CategoryOf(err), time.Since(start))
		s.metrics.RecordAssessment(ctx, 0, false)
		s.logger.ErrorContext(ctx, "assessment aborted: inference failed", external.LogAttrs(err)...)
		return nil, inferenceError(err)
	}
	s.metrics.RecordProvider(ctx, types.ProviderInference, telemetry.OutcomeSuccess, types.CategoryNone, time.Since(start))

	asm := enriched
	if asm == nil {
		asm = &types.Assessment{}
	}
	asm.Detection = detection
	if asm.Coordinate == nil && detection.Coordinate != nil {
		// The model server echoed a location we did not send.
		c := *detection.Coordinate
		asm.Coordinate = &c
	}

	res := &Result{Assessment: asm}
	s.metrics.RecordAssessment(ctx, presentFields(asm), true)
	s.logger.InfoContext(ctx, "assessment completed",
		"label", detection.Label,
		"confidence", detection.Confidence,
		"fields", presentFields(asm),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if in.Save {
		res.RecordID, res.PersistError = s.persist(ctx, in.Account, asm)
	}
	return res, nil
}

func (s *Service) persist(ctx context.Context, account string, asm *types.Assessment) (types.RecordID, error) {
	if s.history == nil {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "history store is not configured", nil)
	}
	id, err := s.history.Persist(ctx, account, asm)
	if err != nil {
		s.logger.WarnContext(ctx, "assessment not saved", "account", account, "error", err)
		return "", err
	}
	return id, nil
}

func inferenceError(err error) error {
	if f, ok := external.AsFailure(err); ok {
		return f.AppError()
	}
	if appErr, ok := err.(*types.AppError); ok {
		return appErr
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamInference, "inference failed", err,
		map[string]any{"provider": string(types.ProviderInference)})
}

// presentFields counts the populated optional fields of an assessment.
func presentFields(a *types.Assessment) int {
	n := 0
	for _, present := range []bool{
		a.Detection != nil, a.Weather != nil, a.Air != nil, a.Location != nil, a.Risk != nil, a.Alerts != nil,
	} {
		if present {
			n++
		}
	}
	return n
}
