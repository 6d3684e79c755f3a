package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cropcare/internal/types"
)

// HistoryClient is the HistoryStore backed by a remote history service.
// Persistence is never retried here; the failure goes back to the caller.
type HistoryClient struct {
	endpoint *EndpointClient
	baseURL  string
	token    types.SecretString
}

// NewHistoryClient creates a HistoryClient. The endpoint should be built with
// NoRetry.
func NewHistoryClient(endpoint *EndpointClient, baseURL string, token types.SecretString) *HistoryClient {
	return &HistoryClient{endpoint: endpoint, baseURL: strings.TrimSuffix(baseURL, "/"), token: token}
}

type historyRecordWire struct {
	ID          json.RawMessage `json:"id"`
	CapturedAt  string          `json:"captured_at"`
	RecordDate  string          `json:"record_date"`
	CropType    string          `json:"crop_type"`
	Disease     string          `json:"disease"`
	Label       string          `json:"label"`
	Severity    string          `json:"severity"`
	Temperature *float64        `json:"temperature"`
	Humidity    *float64        `json:"humidity"`
	Location    string          `json:"location"`
}

type historyListWire struct {
	Data    []historyRecordWire `json:"data"`
	HasMore bool                `json:"has_more"`
}

type historySaveWire struct {
	AccountID   string   `json:"account_id"`
	CropType    string   `json:"crop_type"`
	Disease     string   `json:"disease"`
	Severity    string   `json:"severity,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Location    string   `json:"location,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	RecordDate  string   `json:"record_date"`
}

func (h *HistoryClient) authorize(req *http.Request, account string) {
	if h.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+h.token.Unmask())
	}
	req.Header.Set("X-Account-Id", account)
}

// List returns one page of records for q.Account, newest first.
func (h *HistoryClient) List(ctx context.Context, q types.HistoryQuery) ([]types.HistoryRecord, types.PageInfo, error) {
	limit := types.ClampPageSize(q.Limit)
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(max(q.Offset, 0)))
	if q.Search != "" {
		params.Set("q", q.Search)
	}

	var raw json.RawMessage
	err := h.endpoint.Call(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/history?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		h.authorize(req, q.Account)
		return req, nil
	}, &raw)
	if err != nil {
		return nil, types.PageInfo{}, err
	}

	var page historyListWire
	if err := json.Unmarshal(raw, &page.Data); err != nil {
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, types.PageInfo{}, &Failure{Provider: types.ProviderHistory, Kind: KindDecode, Err: err}
		}
	} else {
		page.HasMore = len(page.Data) == limit
	}

	records := make([]types.HistoryRecord, 0, len(page.Data))
	for _, w := range page.Data {
		rec, err := normalizeHistoryRecord(w)
		if err != nil {
			return nil, types.PageInfo{}, &Failure{Provider: types.ProviderHistory, Kind: KindDecode, Err: err}
		}
		records = append(records, rec)
	}

	info := types.PageInfo{HasMore: page.HasMore}
	if page.HasMore {
		info.NextOffset = q.Offset + len(records)
	}
	return records, info, nil
}

// Save persists one record and returns its identifier.
func (h *HistoryClient) Save(ctx context.Context, rec types.NewHistoryRecord) (types.RecordID, error) {
	payload := historySaveWire{
		AccountID:   rec.Account,
		CropType:    rec.CropType,
		Disease:     rec.Disease,
		Temperature: rec.Temperature,
		Humidity:    rec.Humidity,
		Location:    rec.Location,
		Lat:         rec.Lat,
		Lon:         rec.Lon,
		RecordDate:  rec.CapturedAt.UTC().Format(time.RFC3339),
	}
	if rec.Severity != nil {
		payload.Severity = string(*rec.Severity)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding history record: %w", err)
	}

	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	err = h.endpoint.Call(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/history", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		h.authorize(req, rec.Account)
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	id := rawID(resp.ID)
	if id == "" {
		return "", &Failure{Provider: types.ProviderHistory, Kind: KindDecode, Err: fmt.Errorf("response has no id")}
	}
	return types.RecordID(id), nil
}

func normalizeHistoryRecord(w historyRecordWire) (types.HistoryRecord, error) {
	stamp := firstNonEmpty(w.CapturedAt, w.RecordDate)
	captured, err := parseRecordTime(stamp)
	if err != nil {
		return types.HistoryRecord{}, err
	}
	rec := types.HistoryRecord{
		ID:          types.RecordID(rawID(w.ID)),
		CapturedAt:  captured,
		CropType:    w.CropType,
		Disease:     firstNonEmpty(w.Disease, w.Label),
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		Location:    w.Location,
	}
	if sev, ok := types.ParseRiskLevel(w.Severity); ok {
		rec.Severity = &sev
	}
	return rec, nil
}

// parseRecordTime accepts RFC 3339 timestamps and bare dates.
func parseRecordTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("record has no captured_at or record_date")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable record time %q", s)
}

// rawID renders a JSON string or number id as text.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
