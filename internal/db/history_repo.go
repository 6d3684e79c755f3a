package db

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cropcare/internal/types"
)

// HistoryRepository stores assessment summaries in the crop_history table.
// It satisfies types.HistoryStore.
type HistoryRepository struct {
	db    DBTX
	clock types.Clock
}

// NewHistoryRepository creates a HistoryRepository backed by the given
// connection (pool or transaction).
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db, clock: types.RealClock{}}
}

const historyColumns = `h.id, h.record_date, h.crop_type, h.disease, h.severity,
	h.temperature, h.humidity, h.location`

// historySearch matches the free-text query against the columns the
// history page lets users search by.
const historySearch = `($2 = '' OR h.disease ILIKE '%' || $2 || '%'
	OR h.crop_type ILIKE '%' || $2 || '%'
	OR h.location ILIKE '%' || $2 || '%'
	OR h.id ILIKE '%' || $2 || '%')`

func scanHistory(row pgx.Row) (types.HistoryRecord, error) {
	var (
		rec      types.HistoryRecord
		id       string
		severity *string
		temp     decimal.NullDecimal
		humidity decimal.NullDecimal
	)
	if err := row.Scan(&id, &rec.CapturedAt, &rec.CropType, &rec.Disease, &severity, &temp, &humidity, &rec.Location); err != nil {
		return types.HistoryRecord{}, err
	}
	rec.ID = types.RecordID(id)
	rec.CapturedAt = rec.CapturedAt.UTC()
	if severity != nil {
		if lvl, ok := types.ParseRiskLevel(*severity); ok {
			rec.Severity = &lvl
		}
	}
	rec.Temperature = floatFromDecimal(temp)
	rec.Humidity = floatFromDecimal(humidity)
	return rec, nil
}

// List returns one page of the account's records, newest first. One extra
// row is fetched to decide HasMore.
func (r *HistoryRepository) List(ctx context.Context, q types.HistoryQuery) ([]types.HistoryRecord, types.PageInfo, error) {
	limit := types.ClampPageSize(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+historyColumns+`
		 FROM crop_history h
		 WHERE h.account_id = $1 AND `+historySearch+`
		 ORDER BY h.record_date DESC, h.id DESC
		 LIMIT $3 OFFSET $4`,
		q.Account, strings.TrimSpace(q.Search), limit+1, offset,
	)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list history", err)
	}
	defer rows.Close()

	records := make([]types.HistoryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan history row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating history rows", err)
	}

	var info types.PageInfo
	if len(records) > limit {
		records = records[:limit]
		info.HasMore = true
		info.NextOffset = offset + limit
	}
	return records, info, nil
}

// Save inserts a record and returns its generated ID. Temperature and
// humidity are stored as NUMERIC(5,2).
func (r *HistoryRepository) Save(ctx context.Context, rec types.NewHistoryRecord) (types.RecordID, error) {
	if rec.Account == "" || rec.Disease == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "account and disease are required", nil)
	}
	id := "rec_" + uuid.NewString()

	var severity *string
	if rec.Severity != nil && rec.Severity.Valid() {
		s := string(*rec.Severity)
		severity = &s
	}
	recordDate := rec.CapturedAt
	if recordDate.IsZero() {
		recordDate = r.clock.Now()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO crop_history (id, account_id, crop_type, disease, severity,
		 temperature, humidity, location, lat, lon, record_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id,
		rec.Account,
		rec.CropType,
		rec.Disease,
		severity,
		decimalFromFloat(rec.Temperature),
		decimalFromFloat(rec.Humidity),
		rec.Location,
		rec.Lat,
		rec.Lon,
		recordDate.UTC(),
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to save history record", err)
	}
	return types.RecordID(id), nil
}

// decimalFromFloat rounds to the column scale. Nil stays NULL.
func decimalFromFloat(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v).Round(2))
}

func floatFromDecimal(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

// WithClock overrides the clock used to stamp records saved without a
// capture time.
func (r *HistoryRepository) WithClock(c types.Clock) *HistoryRepository {
	r.clock = c
	return r
}
