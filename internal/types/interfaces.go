package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns the same instant on every call. Used by tests.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// HistoryQuery narrows a history listing.
type HistoryQuery struct {
	Account string
	Search  string
	Limit   int
	Offset  int
}

// NewHistoryRecord is the payload persisted after a completed assessment.
type NewHistoryRecord struct {
	Account     string
	CropType    string
	Disease     string
	Severity    *RiskLevel
	Temperature *float64
	Humidity    *float64
	Location    string
	Lat         *float64
	Lon         *float64
	CapturedAt  time.Time
}

// HistoryStore is the persistence boundary for assessment summaries. The
// pgx repository and the remote HTTP client both satisfy it.
type HistoryStore interface {
	List(ctx context.Context, q HistoryQuery) ([]HistoryRecord, PageInfo, error)
	Save(ctx context.Context, rec NewHistoryRecord) (RecordID, error)
}
