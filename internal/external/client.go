// Package external is the boundary between CropCare domain logic and the
// remote services it depends on (inference, weather, air quality, reverse
// geocoding, regional alerts, remote history). All outbound HTTP calls go
// through BaseClient, which applies circuit breaking, retries with backoff,
// and request ID propagation, and every failure leaves this package as a
// *Failure carrying one taxonomy kind.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"cropcare/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy is used for the lightweight enrichment lookups.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 1,
		MinWait:    200 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// NoRetry disables retries. Inference uses it: re-submission requires a new
// explicit user action.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// BaseClient wraps an *http.Client and a circuit breaker. Provider clients
// embed it through EndpointClient.
type BaseClient struct {
	provider    types.Provider
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep function used between retries.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithBreaker replaces the default per-provider circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) {
		c.breaker = cb
	}
}

// NewBreaker builds the circuit breaker used for one provider. A superseded
// request (context.Canceled) is not counted against the upstream.
func NewBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// NewBaseClient creates a BaseClient for one provider.
func NewBaseClient(
	provider types.Provider,
	httpClient *http.Client,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	bc := &BaseClient{
		provider:    provider,
		client:      httpClient,
		breaker:     NewBreaker(string(provider)),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do executes the request with request ID and User-Agent injection, the
// circuit breaker, and retries on 429/5xx (honoring Retry-After).
//
// Responses with other statuses, including 4xx, are returned as-is and the
// caller must close the body. Exhausted retries, transport errors and an open
// breaker are returned as *Failure.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if rid := types.GetRequestID(req.Context()); rid != "" {
		req.Header.Set("X-Request-Id", rid)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, &Failure{Provider: c.provider, Kind: KindNetwork, Err: fmt.Errorf("reading request body: %w", err)}
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		lastResp = nil
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
			if req.Context().Err() != nil {
				lastErr = req.Context().Err()
				break
			}
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.classify(lastResp, lastErr)
}

// computeBackoff honors Retry-After when present, otherwise uses exponential
// backoff with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := math.Min(float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)), float64(c.retryPolicy.MaxWait))
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// classify turns a failed attempt into a *Failure.
func (c *BaseClient) classify(resp *http.Response, err error) *Failure {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Failure{Provider: c.provider, Kind: KindCircuitOpen, Err: err}
	}
	if resp != nil {
		return &Failure{Provider: c.provider, Kind: KindHTTPStatus, StatusCode: resp.StatusCode, Err: err}
	}
	return transportFailure(c.provider, err)
}

// transportFailure separates deadline expiry from other network errors.
func transportFailure(provider types.Provider, err error) *Failure {
	var timeout interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Provider: provider, Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Provider: provider, Kind: KindCanceled, Err: err}
	case errors.As(err, &timeout) && timeout.Timeout():
		return &Failure{Provider: provider, Kind: KindTimeout, Err: err}
	default:
		return &Failure{Provider: provider, Kind: KindNetwork, Err: err}
	}
}
