// Package handlers contains the HTTP handler implementations for the
// CropCare API. Handlers parse and validate input, delegate to the use-case
// services and render the core JSON envelope.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cropcare/internal/core"
	"cropcare/internal/enrichment"
	"cropcare/internal/types"
)

// Enricher runs one enrichment fan-out. *enrichment.Aggregator satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) *types.Assessment
	Alerts(ctx context.Context) ([]types.RegionalAlert, error)
}

// LocationResolver picks a coordinate for a one-shot request.
// *location.Provider satisfies it.
type LocationResolver interface {
	Resolve(lat, lon *float64, acc float64, region string) (types.Coordinate, types.LocationSource, error)
}

// EnrichmentHandler serves enrichment-only assessments and the raw regional
// alerts feed.
type EnrichmentHandler struct {
	enricher  Enricher
	resolver  LocationResolver
	validator *core.Validator
	logger    *slog.Logger
}

// NewEnrichmentHandler creates a new EnrichmentHandler.
func NewEnrichmentHandler(enricher Enricher, resolver LocationResolver, val *core.Validator, logger *slog.Logger) *EnrichmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichmentHandler{
		enricher:  enricher,
		resolver:  resolver,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts GET /enrichment and GET /alerts.
func (h *EnrichmentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/enrichment", h.HandleEnrich)
	r.Get("/alerts", h.HandleAlerts)
}

// HandleEnrich handles GET /v1/enrichment?lat&lon[&acc] or ?region.
// Without either the default location is used. Provider failures leave
// their fields absent; the response is always 200.
func (h *EnrichmentHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	params, err := readLocation(r.URL.Query().Get)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	result := h.validator.ValidateStructWithWarnings(params)
	if err := result.Err(); err != nil {
		core.Error(w, r, err)
		return
	}

	coord, source, err := h.resolver.Resolve(params.Lat, params.Lon, params.Acc, params.Region)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	asm := h.enricher.Enrich(r.Context(), enrichment.Request{Coordinate: &coord, Source: source})

	resp := core.APIResponse{Data: asm}
	if len(result.Warnings) > 0 {
		resp.Meta = &types.ResponseMeta{Warnings: result.Warnings}
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	core.JSON(w, r, http.StatusOK, resp)
}

// HandleAlerts handles GET /v1/alerts. Alerts are best-effort: a provider
// failure yields an empty list and a warning rather than an error.
func (h *EnrichmentHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.enricher.Alerts(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "regional alerts unavailable", "error", err)
		core.JSON(w, r, http.StatusOK, core.APIResponse{
			Data: []types.RegionalAlert{},
			Meta: &types.ResponseMeta{Warnings: []string{"regional alerts are temporarily unavailable"}},
		})
		return
	}
	if alerts == nil {
		alerts = []types.RegionalAlert{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: alerts})
}
