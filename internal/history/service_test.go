package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcare/internal/types"
)

// memStore is an in-memory HistoryStore that returns records newest first.
type memStore struct {
	mu      sync.Mutex
	records []types.HistoryRecord
	saved   []types.NewHistoryRecord
	lists   int
	saveErr error
	listErr error
}

func (m *memStore) List(_ context.Context, q types.HistoryQuery) ([]types.HistoryRecord, types.PageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, types.PageInfo{}, m.listErr
	}
	if q.Offset >= len(m.records) {
		return []types.HistoryRecord{}, types.PageInfo{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(m.records) {
		end = len(m.records)
	}
	page := append([]types.HistoryRecord(nil), m.records[q.Offset:end]...)
	info := types.PageInfo{HasMore: end < len(m.records)}
	if info.HasMore {
		info.NextOffset = end
	}
	return page, info, nil
}

func (m *memStore) Save(_ context.Context, rec types.NewHistoryRecord) (types.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved = append(m.saved, rec)
	return types.RecordID(fmt.Sprintf("rec-%d", len(m.saved))), nil
}

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func newTestService(store types.HistoryStore) *Service {
	return NewService(store, nil, types.FixedClock{T: testNow}, nil)
}

// daily builds n records, one per day going back from testNow.
func daily(n int, disease string) []types.HistoryRecord {
	out := make([]types.HistoryRecord, n)
	for i := range out {
		out[i] = types.HistoryRecord{
			ID:         types.RecordID(fmt.Sprintf("r%d", i)),
			CapturedAt: testNow.AddDate(0, 0, -i),
			Disease:    disease,
		}
	}
	return out
}

func TestService_Persist(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store)

	coord := types.NewCoordinate(23.81, 90.41, 10)
	a := &types.Assessment{
		Detection: &types.DetectionResult{
			Label: "Rice Blast", Confidence: 0.91, CropType: types.CropRice, CapturedAt: testNow,
		},
		Weather:    &types.WeatherSnapshot{TempC: 31.5, HumidityPct: 88},
		Location:   &types.LocationLabel{Text: "Dhaka, Bangladesh"},
		Coordinate: &coord,
	}

	id, err := svc.Persist(context.Background(), "acct-1", a)
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("rec-1"), id)

	require.Len(t, store.saved, 1)
	rec := store.saved[0]
	assert.Equal(t, "acct-1", rec.Account)
	assert.Equal(t, "rice", rec.CropType)
	assert.Equal(t, "Rice Blast", rec.Disease)
	assert.Equal(t, "Dhaka, Bangladesh", rec.Location)
	assert.Equal(t, 31.5, *rec.Temperature)
	assert.Equal(t, 88.0, *rec.Humidity)
	assert.Equal(t, 23.81, *rec.Lat)
	assert.Equal(t, 90.41, *rec.Lon)
	assert.Nil(t, rec.Severity)
	assert.Equal(t, testNow, rec.CapturedAt)
}

func TestService_PersistErrors(t *testing.T) {
	det := &types.Assessment{Detection: &types.DetectionResult{Label: "Healthy"}}

	_, err := newTestService(&memStore{}).Persist(context.Background(), "acct", &types.Assessment{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)

	_, err = newTestService(&memStore{}).Persist(context.Background(), "", det)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthAccountMissing, appErr.Code)

	boom := errors.New("db down")
	_, err = newTestService(&memStore{saveErr: boom}).Persist(context.Background(), "acct", det)
	assert.ErrorIs(t, err, boom)
}

func TestRecordFromAssessment_FallsBackToDetectionCoordinate(t *testing.T) {
	c := types.NewCoordinate(24.89, 91.87, 0)
	rec, err := RecordFromAssessment("acct", &types.Assessment{
		Detection: &types.DetectionResult{Label: "Leaf Spot", Coordinate: &c},
	})
	require.NoError(t, err)
	assert.Equal(t, 24.89, *rec.Lat)
	assert.Nil(t, rec.Temperature)
	assert.Empty(t, rec.Location)
}

func TestRecordFromAssessment_DefaultCoordinateIsNotSaved(t *testing.T) {
	c := types.NewCoordinate(23.8103, 90.4125, 0)
	rec, err := RecordFromAssessment("acct", &types.Assessment{
		Detection:  &types.DetectionResult{Label: "Leaf Spot", Coordinate: &c},
		Coordinate: &c,
		Source:     types.SourceDefault,
		Weather:    &types.WeatherSnapshot{TempC: 30, HumidityPct: 80},
	})
	require.NoError(t, err)
	assert.Nil(t, rec.Lat)
	assert.Nil(t, rec.Lon)
	require.NotNil(t, rec.Temperature)
	assert.Equal(t, 30.0, *rec.Temperature)
}

func TestService_ListFillsSeverity(t *testing.T) {
	high := types.RiskHigh
	store := &memStore{records: []types.HistoryRecord{
		{ID: "1", Disease: "Leaf Rust"},
		{ID: "2", Disease: "Healthy", Severity: &high},
	}}
	records, info, err := newTestService(store).List(context.Background(), types.HistoryQuery{Account: "a", Limit: 500})
	require.NoError(t, err)
	assert.False(t, info.HasMore)
	require.Len(t, records, 2)
	assert.Equal(t, types.RiskMedium, *records[0].Severity)
	assert.Equal(t, types.RiskHigh, *records[1].Severity, "stored severity wins")
}

func TestService_ActivityPagesUntilWindowCovered(t *testing.T) {
	// 300 daily records span three full pages; only the first is needed.
	store := &memStore{records: daily(300, "Healthy")}
	buckets, err := newTestService(store).Activity(context.Background(), "a", 14)
	require.NoError(t, err)
	require.Len(t, buckets, 14)
	for _, b := range buckets {
		assert.Equal(t, 1, b.Count, b.Day)
	}
	assert.Equal(t, "2024-06-02", buckets[0].Day)
	assert.Equal(t, "2024-06-15", buckets[13].Day)
	assert.Equal(t, 2, store.lists, "stops after the first page entirely before the window")
}

func TestService_ActivityRejectsWindow(t *testing.T) {
	store := &memStore{}
	_, err := newTestService(store).Activity(context.Background(), "a", 30)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Zero(t, store.lists)
}

func TestService_Severity(t *testing.T) {
	records := append(daily(3, "Late Blight"), daily(2, "Brown Spot")...)
	records = append(records, daily(4, "Healthy")...)
	store := &memStore{records: records}

	dist, err := newTestService(store).Severity(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, types.SeverityDistribution{Low: 4, Medium: 2, High: 3}, dist)
}

func TestService_SeverityCapsScan(t *testing.T) {
	store := &memStore{records: daily(insightScanLimit+250, "Healthy")}
	dist, err := newTestService(store).Severity(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, insightScanLimit, dist.Total())
}

func TestService_ListErrorPropagates(t *testing.T) {
	boom := errors.New("unavailable")
	svc := newTestService(&memStore{listErr: boom})
	_, _, err := svc.List(context.Background(), types.HistoryQuery{})
	assert.ErrorIs(t, err, boom)
	_, err = svc.Severity(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
}

func TestService_SaveDefaultsRecordDate(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store)

	id, err := svc.Save(context.Background(), types.NewHistoryRecord{Account: "acct", CropType: "wheat", Disease: "Rust"})
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("rec-1"), id)
	require.Len(t, store.saved, 1)
	assert.Equal(t, testNow, store.saved[0].CapturedAt)

	_, err = svc.Save(context.Background(), types.NewHistoryRecord{Disease: "Rust"})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthAccountMissing, appErr.Code)
}
