package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cropcare/internal/types"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dhaka = types.NewCoordinate(23.8103, 90.4125, 0)

func testEndpoint(provider types.Provider, timeout time.Duration) *EndpointClient {
	return NewEndpointClient(EndpointConfig{
		Provider: provider,
		Timeout:  timeout,
		Retry:    NoRetry(),
		Options:  []BaseClientOption{WithSleepFunc(noopSleep)},
	})
}

func jsonHandler(t *testing.T, status int, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func TestWeatherClient_Normalizes(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"latitude":        r.URL.Query().Get("latitude"),
			"wind_speed_unit": r.URL.Query().Get("wind_speed_unit"),
		}
		io.WriteString(w, `{"current":{"temperature_2m":31.5,"relative_humidity_2m":84,"rain":12.2,
			"weather_code":61,"wind_speed_10m":18,"uv_index":6.5,"visibility":24140}}`)
	}))
	defer server.Close()

	snap, err := NewWeatherClient(testEndpoint(types.ProviderWeather, time.Second), server.URL).CurrentWeather(context.Background(), dhaka)
	require.NoError(t, err)

	assert.Equal(t, "23.8103", query["latitude"])
	assert.Equal(t, "kmh", query["wind_speed_unit"])
	assert.Equal(t, types.WeatherSnapshot{
		TempC: 31.5, HumidityPct: 84, RainMM: 12.2, WindKph: 18, UVIndex: 6.5, VisibilityKm: 24.14, WeatherCode: 61,
	}, *snap)
}

func TestWeatherClient_MissingFieldIsMalformed(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"current":{"temperature_2m":20,"relative_humidity_2m":50}}`))
	defer server.Close()

	_, err := NewWeatherClient(testEndpoint(types.ProviderWeather, time.Second), server.URL).CurrentWeather(context.Background(), dhaka)
	require.Error(t, err)
	assert.Equal(t, types.CategoryMalformed, types.CategoryOf(err))
}

func TestWeatherClient_HumidityOutOfRangeIsMalformed(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"current":{"temperature_2m":20,"relative_humidity_2m":140,
		"rain":0,"weather_code":0,"wind_speed_10m":0,"uv_index":0,"visibility":10000}}`))
	defer server.Close()

	_, err := NewWeatherClient(testEndpoint(types.ProviderWeather, time.Second), server.URL).CurrentWeather(context.Background(), dhaka)
	assert.Equal(t, types.CategoryMalformed, types.CategoryOf(err))
}

func TestEndpoint_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewWeatherClient(testEndpoint(types.ProviderWeather, 50*time.Millisecond), server.URL).CurrentWeather(context.Background(), dhaka)
	f, ok := AsFailure(err)
	require.True(t, ok, "expected *Failure, got %T", err)
	assert.Equal(t, KindTimeout, f.Kind)
	assert.Equal(t, types.CategoryTransport, f.Category())
}

func TestEndpoint_DecodesGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		io.WriteString(gz, `{"current":{"us_aqi":42}}`)
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	snap, err := NewAirQualityClient(testEndpoint(types.ProviderAirQuality, time.Second), server.URL).CurrentAirQuality(context.Background(), dhaka)
	require.NoError(t, err)
	assert.Equal(t, types.AirQualitySnapshot{AQI: 42, Category: types.AQIGood}, *snap)
}

func TestEndpoint_StatusAndDecodeFailures(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		server := httptest.NewServer(jsonHandler(t, http.StatusUnauthorized, `{"reason":"key"}`))
		defer server.Close()
		_, err := NewAirQualityClient(testEndpoint(types.ProviderAirQuality, time.Second), server.URL).CurrentAirQuality(context.Background(), dhaka)
		assert.Equal(t, types.CategoryUnauthorized, types.CategoryOf(err))
	})
	t.Run("not json", func(t *testing.T) {
		server := httptest.NewServer(jsonHandler(t, http.StatusOK, `<html>`))
		defer server.Close()
		_, err := NewAirQualityClient(testEndpoint(types.ProviderAirQuality, time.Second), server.URL).CurrentAirQuality(context.Background(), dhaka)
		assert.Equal(t, types.CategoryMalformed, types.CategoryOf(err))
	})
}

func TestAirQualityClient_Bands(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"current":{"us_aqi":151}}`))
	defer server.Close()

	snap, err := NewAirQualityClient(testEndpoint(types.ProviderAirQuality, time.Second), server.URL).CurrentAirQuality(context.Background(), dhaka)
	require.NoError(t, err)
	assert.Equal(t, types.AQIUnhealthy, snap.Category)
}

func TestGeocodeClient_JoinsAddressParts(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"address":{"suburb":"Gulshan","city":"Dhaka",
		"state":"Dhaka Division","country":"Bangladesh"}}`))
	defer server.Close()

	label, err := NewGeocodeClient(testEndpoint(types.ProviderGeocode, time.Second), server.URL).ReverseGeocode(context.Background(), dhaka)
	require.NoError(t, err)
	assert.Equal(t, "Gulshan, Dhaka, Dhaka Division, Bangladesh", label.Text)
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name string
		in   nominatimAddress
		want string
	}{
		{"neighbourhood preferred", nominatimAddress{Neighbourhood: "Banani", Suburb: "Gulshan", City: "Dhaka"}, "Banani, Dhaka"},
		{"town fallback", nominatimAddress{Town: "Sreemangal", Region: "Sylhet", Country: "Bangladesh"}, "Sreemangal, Sylhet, Bangladesh"},
		{"dedup", nominatimAddress{City: "Dhaka", State: "dhaka", Country: "Bangladesh"}, "Dhaka, Bangladesh"},
		{"empty", nominatimAddress{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAddress(tt.in))
		})
	}
}

func TestGeocodeClient_ErrorBody(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"error":"Unable to geocode"}`))
	defer server.Close()

	_, err := NewGeocodeClient(testEndpoint(types.ProviderGeocode, time.Second), server.URL).ReverseGeocode(context.Background(), dhaka)
	assert.Equal(t, types.CategoryServerRejected, types.CategoryOf(err))
}

func TestAlertsClient_NormalizesAndDropsInvalid(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `[
		{"region":"Sylhet","top_disease":"Tea Blister Blight","severity":"Medium","summary":"s",
		 "tips":["prune"],"center":{"lat":24.8949,"lon":91.8687},"radius_m":6000},
		{"region":"Khulna","top_disease":"Rice Blast","severity":"high","center":{"lat":22.8456,"lon":89.5403}},
		{"region":"Nowhere","severity":"extreme","center":{"lat":1,"lon":1}},
		{"region":"NoCenter","severity":"low"}
	]`))
	defer server.Close()

	alerts, err := NewAlertsClient(testEndpoint(types.ProviderAlerts, time.Second), server.URL, nil).RegionalAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, types.RiskMedium, alerts[0].Severity)
	assert.Equal(t, 6000.0, alerts[0].RadiusMeters)
	assert.Equal(t, float64(DefaultAlertRadiusMeters), alerts[1].RadiusMeters)
	assert.Equal(t, []string{}, alerts[1].Tips)
}

func TestAlertsClient_WrappedEnvelope(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"alerts":[{"region":"Rangpur","severity":"low","center":{"lat":25.7439,"lon":89.2752}}]}`))
	defer server.Close()

	alerts, err := NewAlertsClient(testEndpoint(types.ProviderAlerts, time.Second), server.URL, nil).RegionalAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Rangpur", alerts[0].Region)
}

func newTestInference(url string, timeout time.Duration) *InferenceClient {
	return NewInferenceClient(InferenceClientConfig{
		URL:     url,
		Timeout: timeout,
		Clock:   types.FixedClock{T: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		Options: []BaseClientOption{WithSleepFunc(noopSleep)},
	})
}

func TestInferenceClient_SendsMultipartAndParses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "leaf.png", hdr.Filename)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
		assert.Equal(t, "tomato", r.FormValue("crop_type"))
		assert.Equal(t, "flowering", r.FormValue("crop_stage"))
		assert.Equal(t, "23.8103", r.FormValue("lat"))
		assert.Equal(t, "500", r.FormValue("acc"))

		json.NewEncoder(w).Encode(map[string]any{
			"class_id": 11, "label": "Tomato__Late_blight", "confidence": 0.93,
			"crop_type": "tomato", "crop_stage": "flowering",
		})
	}))
	defer server.Close()

	coord := types.NewCoordinate(23.8103, 90.4125, 500)
	got, err := newTestInference(server.URL, time.Second).Predict(context.Background(), InferenceRequest{
		Image: []byte{0x89, 'P', 'N', 'G'}, Filename: "leaf.png",
		CropType: types.CropTomato, CropStage: types.StageFlowering, Coordinate: &coord,
	})
	require.NoError(t, err)

	assert.Equal(t, 11, got.ClassID)
	assert.Equal(t, "Tomato__Late_blight", got.Label)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), got.CapturedAt)
	assert.Equal(t, &coord, got.Coordinate)
}

func TestInferenceClient_ResolvesUnknownLabel(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, 200, `{"class_id":2,"label":"Unknown","confidence":0.7,"captured_at":"2026-02-01T08:00:00Z"}`))
	defer server.Close()

	got, err := newTestInference(server.URL, time.Second).Predict(context.Background(), InferenceRequest{Image: []byte{1}, CropType: types.CropPotato})
	require.NoError(t, err)
	assert.Equal(t, "Potato__Early_blight", got.Label)
	assert.Equal(t, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), got.CapturedAt)
	assert.Equal(t, types.CropPotato, got.CropType)
}

func TestInferenceClient_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category types.ErrorCategory
	}{
		{"error field with 200", 200, `{"error":"cannot identify image file"}`, types.CategoryServerRejected},
		{"confidence out of range", 200, `{"class_id":1,"label":"x","confidence":1.5}`, types.CategoryMalformed},
		{"unresolvable class", 200, `{"class_id":99,"confidence":0.5}`, types.CategoryMalformed},
		{"missing class id", 200, `{"label":"x","confidence":0.5}`, types.CategoryMalformed},
		{"server error", 500, `{}`, types.CategoryServerRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(jsonHandler(t, tt.status, tt.body))
			defer server.Close()

			got, err := newTestInference(server.URL, time.Second).Predict(context.Background(), InferenceRequest{Image: []byte{1}})
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, tt.category, types.CategoryOf(err))
		})
	}
}

func TestInferenceClient_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	got, err := newTestInference(server.URL, 50*time.Millisecond).Predict(context.Background(), InferenceRequest{Image: []byte{1}})
	assert.Nil(t, got)
	assert.Equal(t, types.CategoryTransport, types.CategoryOf(err))
}

func TestHistoryClient_ListAndSave(t *testing.T) {
	var saved historySaveWire
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "acct-1", r.Header.Get("X-Account-Id"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			assert.Equal(t, "blight", r.URL.Query().Get("q"))
			io.WriteString(w, `[{"id":7,"record_date":"2026-02-10","crop_type":"potato","label":"Potato__Late_blight","temperature":24.5},
				{"id":"abc","captured_at":"2026-02-09T10:00:00Z","crop_type":"tomato","disease":"Tomato__healthy","severity":"low"}]`)
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":42}`)
		}
	}))
	defer server.Close()

	client := NewHistoryClient(testEndpoint(types.ProviderHistory, time.Second), server.URL+"/", "tok")

	recs, page, err := client.List(context.Background(), types.HistoryQuery{Account: "acct-1", Limit: 2, Search: "blight"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.RecordID("7"), recs[0].ID)
	assert.Equal(t, "Potato__Late_blight", recs[0].Disease)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), recs[0].CapturedAt)
	require.NotNil(t, recs[1].Severity)
	assert.Equal(t, types.RiskLow, *recs[1].Severity)
	assert.True(t, page.HasMore)
	assert.Equal(t, 2, page.NextOffset)

	temp := 30.25
	id, err := client.Save(context.Background(), types.NewHistoryRecord{
		Account: "acct-1", CropType: "rice", Disease: "Rice Blast", Temperature: &temp,
		CapturedAt: time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RecordID("42"), id)
	assert.Equal(t, "acct-1", saved.AccountID)
	assert.Equal(t, "2026-02-11T06:00:00Z", saved.RecordDate)
}

func TestHistoryClient_SaveFailureSurfaced(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, http.StatusServiceUnavailable, `{}`))
	defer server.Close()

	_, err := NewHistoryClient(testEndpoint(types.ProviderHistory, time.Second), server.URL, "").
		Save(context.Background(), types.NewHistoryRecord{Account: "a", CapturedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, types.CategoryServerRejected, types.CategoryOf(err))
}
