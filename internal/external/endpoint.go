package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cropcare/internal/types"

	"github.com/klauspost/compress/gzip"
)

// maxResponseBytes bounds how much of a provider body is decoded.
const maxResponseBytes = 4 << 20

// EndpointClient is the JSON fetch wrapper every provider client is built
// on. It enforces the provider's timeout budget and decodes the body, and
// it never returns anything but nil or a *Failure.
type EndpointClient struct {
	base    *BaseClient
	timeout time.Duration
	logger  *slog.Logger
}

// EndpointConfig configures one provider endpoint.
type EndpointConfig struct {
	Provider   types.Provider
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      RetryPolicy
	UserAgent  string
	Logger     *slog.Logger
	Options    []BaseClientOption
}

// NewEndpointClient builds an EndpointClient with its own circuit breaker.
func NewEndpointClient(cfg EndpointConfig) *EndpointClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EndpointClient{
		base:    NewBaseClient(cfg.Provider, cfg.HTTPClient, cfg.Retry, cfg.UserAgent, cfg.Options...),
		timeout: cfg.Timeout,
		logger:  logger.With("provider", string(cfg.Provider)),
	}
}

// Provider returns the provider this client talks to.
func (e *EndpointClient) Provider() types.Provider { return e.base.provider }

// GetJSON issues a GET to rawURL with query params and decodes the JSON body
// into out.
func (e *EndpointClient) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &Failure{Provider: e.Provider(), Kind: KindNetwork, Err: fmt.Errorf("parsing url: %w", err)}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return e.Call(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}, out)
}

// Call builds a request under the provider's timeout, executes it, and
// decodes a 2xx JSON body into out. Non-2xx responses become
// KindHTTPStatus failures; undecodable bodies become KindDecode.
func (e *EndpointClient) Call(ctx context.Context, build func(context.Context) (*http.Request, error), out any) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := build(ctx)
	if err != nil {
		return &Failure{Provider: e.Provider(), Kind: KindNetwork, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	start := time.Now()
	resp, err := e.base.Do(req)
	if err != nil {
		if f, ok := AsFailure(err); ok {
			// Transport failures surfaced by http.Client lose the ctx
			// deadline cause; restore it so a budget overrun reads as timeout.
			if f.Kind == KindNetwork && ctx.Err() == context.DeadlineExceeded {
				f.Kind = KindTimeout
			}
			return f
		}
		return transportFailure(e.Provider(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Failure{
			Provider:   e.Provider(),
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream body: %s", strings.TrimSpace(string(snippet))),
		}
	}

	body, err := readBody(resp)
	if err != nil {
		if ctx.Err() != nil {
			return transportFailure(e.Provider(), ctx.Err())
		}
		return &Failure{Provider: e.Provider(), Kind: KindDecode, Err: err}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &Failure{Provider: e.Provider(), Kind: KindDecode, Err: err}
		}
	}

	e.logger.DebugContext(ctx, "provider call succeeded",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// readBody decodes gzip when the server honored Accept-Encoding. Setting the
// header explicitly disables net/http's transparent decompression.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxResponseBytes))
}
