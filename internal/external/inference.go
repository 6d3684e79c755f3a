package external

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cropcare/internal/types"
)

// DefaultClassLabels is the class-index table of the bundled leaf disease
// model. Used when the server omits the label or reports "Unknown".
var DefaultClassLabels = []string{
	"Pepper__bell__Bacterial_Spot",
	"Pepper__bell__healthy",
	"Potato__Early_blight",
	"Potato__healthy",
	"Potato__Late_blight",
	"Tomato__Target_Spot",
	"Tomato__Tomato_mosaic_virus",
	"Tomato__Tomato_YellowLeaf_Curl_Virus",
	"Tomato__Bacterial_spot",
	"Tomato__Early_blight",
	"Tomato__healthy",
	"Tomato__Late_blight",
	"Tomato__Leaf_Mold",
	"Tomato__Septoria_leaf_spot",
	"Tomato__Spider_mites_Two_spotted_spider_mite",
}

// InferenceClientConfig holds the configuration for creating an InferenceClient.
type InferenceClientConfig struct {
	URL         string
	Timeout     time.Duration
	UserAgent   string
	ClassLabels []string
	Clock       types.Clock
	Logger      *slog.Logger
	HTTPClient  *http.Client
	Options     []BaseClientOption
}

// InferenceClient posts images to the classification server as multipart
// form data.
type InferenceClient struct {
	endpoint *EndpointClient
	url      string
	labels   []string
	clock    types.Clock
	logger   *slog.Logger
}

// inferenceResponse is the model server's reply. The server reports
// failures as {"error": "..."} with HTTP 200.
type inferenceResponse struct {
	ClassID    *int     `json:"class_id"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	CapturedAt string   `json:"captured_at"`
	CropType   string   `json:"crop_type"`
	CropStage  string   `json:"crop_stage"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Acc        *float64 `json:"acc"`
	Error      string   `json:"error"`
}

// NewInferenceClient creates an InferenceClient. Retries are disabled.
func NewInferenceClient(cfg InferenceClientConfig) *InferenceClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	labels := cfg.ClassLabels
	if labels == nil {
		labels = DefaultClassLabels
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &InferenceClient{
		endpoint: NewEndpointClient(EndpointConfig{
			Provider:   types.ProviderInference,
			HTTPClient: cfg.HTTPClient,
			Timeout:    cfg.Timeout,
			Retry:      NoRetry(),
			UserAgent:  cfg.UserAgent,
			Logger:     logger,
			Options:    cfg.Options,
		}),
		url:    cfg.URL,
		labels: labels,
		clock:  clock,
		logger: logger,
	}
}

// Predict submits the image and returns a single structured prediction.
func (c *InferenceClient) Predict(ctx context.Context, in InferenceRequest) (*types.DetectionResult, error) {
	body, contentType, err := encodeInferenceForm(in)
	if err != nil {
		return nil, &Failure{Provider: types.ProviderInference, Kind: KindNetwork, Err: err}
	}

	var resp inferenceResponse
	err = c.endpoint.Call(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, &resp)
	if err != nil {
		c.logger.ErrorContext(ctx, "inference call failed", LogAttrs(err)...)
		return nil, err
	}

	result, err := c.normalize(in, resp)
	if err != nil {
		c.logger.ErrorContext(ctx, "inference response rejected", LogAttrs(err)...)
		return nil, err
	}
	return result, nil
}

func encodeInferenceForm(in InferenceRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := in.Filename
	if filename == "" {
		filename = "leaf.jpg"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(in.Image); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}

	fields := [][2]string{
		{"crop_type", string(in.CropType)},
		{"crop_stage", string(in.CropStage)},
	}
	if in.Coordinate != nil {
		fields = append(fields,
			[2]string{"lat", formatFloat(in.Coordinate.Lat)},
			[2]string{"lon", formatFloat(in.Coordinate.Lon)},
		)
		if in.Coordinate.AccuracyMeters != nil {
			fields = append(fields, [2]string{"acc", formatFloat(*in.Coordinate.AccuracyMeters)})
		}
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("writing %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// normalize validates the response and builds the DetectionResult. Request
// metadata fills fields the server did not echo.
func (c *InferenceClient) normalize(in InferenceRequest, resp inferenceResponse) (*types.DetectionResult, error) {
	malformed := func(format string, args ...any) error {
		return &Failure{Provider: types.ProviderInference, Kind: KindDecode, Err: fmt.Errorf(format, args...)}
	}

	if resp.Error != "" {
		return nil, &Failure{Provider: types.ProviderInference, Kind: KindRejected, Err: fmt.Errorf("model server: %s", resp.Error)}
	}
	if resp.ClassID == nil {
		return nil, malformed("missing class_id")
	}
	if resp.Confidence == nil {
		return nil, malformed("missing confidence")
	}
	if err := types.ValidateConfidence(*resp.Confidence); err != nil {
		return nil, malformed("%v", err)
	}

	label := strings.TrimSpace(resp.Label)
	if label == "" || strings.EqualFold(label, "unknown") {
		id := *resp.ClassID
		if id < 0 || id >= len(c.labels) {
			return nil, malformed("no label for class_id %d", id)
		}
		label = c.labels[id]
	}

	capturedAt := c.clock.Now()
	if resp.CapturedAt != "" {
		t, err := time.Parse(time.RFC3339, resp.CapturedAt)
		if err != nil {
			return nil, malformed("captured_at: %v", err)
		}
		capturedAt = t.UTC()
	}

	result := &types.DetectionResult{
		ClassID:    *resp.ClassID,
		Label:      label,
		Confidence: *resp.Confidence,
		CapturedAt: capturedAt,
		CropType:   in.CropType,
		CropStage:  in.CropStage,
		Coordinate: in.Coordinate,
	}
	if ct, ok := types.ParseCropType(resp.CropType); ok {
		result.CropType = ct
	}
	if cs, ok := types.ParseCropStage(resp.CropStage); ok {
		result.CropStage = cs
	}
	if result.Coordinate == nil && resp.Lat != nil && resp.Lon != nil {
		acc := 0.0
		if resp.Acc != nil {
			acc = *resp.Acc
		}
		coord := types.NewCoordinate(*resp.Lat, *resp.Lon, acc)
		if coord.Validate() == nil {
			result.Coordinate = &coord
		}
	}
	return result, nil
}
