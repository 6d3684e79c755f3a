// Package history persists completed assessments through a HistoryStore
// and derives dashboard insights from the stored records: day-bucketed
// activity and the keyword-based severity distribution.
package history

import (
	"context"
	"log/slog"
	"time"

	"cropcare/internal/risk"
	"cropcare/internal/types"
)

// insightScanLimit caps how many records one insight computation reads.
const insightScanLimit = 1000

// Service is the use-case layer over a HistoryStore.
type Service struct {
	store    types.HistoryStore
	severity *risk.SeverityTable
	clock    types.Clock
	logger   *slog.Logger
}

// NewService creates a Service. A nil severity table uses the built-in
// keywords; a nil clock uses the wall clock.
func NewService(store types.HistoryStore, severity *risk.SeverityTable, clock types.Clock, logger *slog.Logger) *Service {
	if severity == nil {
		severity = risk.DefaultSeverityTable()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, severity: severity, clock: clock, logger: logger.With("component", "history")}
}

// Persist stores a completed assessment for account. Failures are returned
// as-is and are not retried; the assessment itself is unaffected.
func (s *Service) Persist(ctx context.Context, account string, a *types.Assessment) (types.RecordID, error) {
	rec, err := RecordFromAssessment(account, a)
	if err != nil {
		return "", err
	}
	id, err := s.store.Save(ctx, rec)
	if err != nil {
		s.logger.WarnContext(ctx, "history persist failed", "account", account, "error", err)
		return "", err
	}
	s.logger.InfoContext(ctx, "history record saved", "account", account, "record_id", string(id))
	return id, nil
}

// Save stores a summary submitted directly by a client, for example one
// recorded offline. The record date defaults to the service clock.
func (s *Service) Save(ctx context.Context, rec types.NewHistoryRecord) (types.RecordID, error) {
	if rec.Account == "" {
		return "", types.NewAppError(types.ErrCodeAuthAccountMissing, "account is required to save history", nil)
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = s.clock.Now()
	}
	id, err := s.store.Save(ctx, rec)
	if err != nil {
		s.logger.WarnContext(ctx, "history save failed", "account", rec.Account, "error", err)
		return "", err
	}
	return id, nil
}

// List returns one page of records. Records carry a severity: the stored
// one when present, otherwise the keyword estimate.
func (s *Service) List(ctx context.Context, q types.HistoryQuery) ([]types.HistoryRecord, types.PageInfo, error) {
	q.Limit = types.ClampPageSize(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	records, info, err := s.store.List(ctx, q)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	for i := range records {
		if records[i].Severity == nil || !records[i].Severity.Valid() {
			sev := s.severity.Classify(records[i].Disease)
			records[i].Severity = &sev
		}
	}
	return records, info, nil
}

// Activity returns per-day record counts for the trailing window (7 or 14
// days) ending today, oldest first, zero-filled.
func (s *Service) Activity(ctx context.Context, account string, days int) ([]types.DayBucket, error) {
	if err := types.ValidateActivityWindow(days); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	since := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	records, err := s.scan(ctx, account, since)
	if err != nil {
		return nil, err
	}
	return risk.Activity(records, now, days)
}

// Severity buckets the account's most recent records by estimated severity.
// The buckets are a heuristic over disease names, not a diagnosis.
func (s *Service) Severity(ctx context.Context, account string) (types.SeverityDistribution, error) {
	records, err := s.scan(ctx, account, time.Time{})
	if err != nil {
		return types.SeverityDistribution{}, err
	}
	return s.severity.Distribution(records), nil
}

// scan pages through the account's records until it runs out, reaches
// insightScanLimit, or (for non-zero since) sees a page entirely older than
// since.
func (s *Service) scan(ctx context.Context, account string, since time.Time) ([]types.HistoryRecord, error) {
	var out []types.HistoryRecord
	q := types.HistoryQuery{Account: account, Limit: types.MaxPageSize}
	for len(out) < insightScanLimit {
		page, info, err := s.store.List(ctx, q)
		if err != nil {
			return nil, err
		}
		older := 0
		for _, r := range page {
			if !since.IsZero() && r.CapturedAt.Before(since) {
				older++
				continue
			}
			out = append(out, r)
		}
		if !info.HasMore || len(page) == 0 || (!since.IsZero() && older == len(page)) {
			break
		}
		q.Offset += len(page)
	}
	if len(out) > insightScanLimit {
		out = out[:insightScanLimit]
	}
	return out, nil
}
