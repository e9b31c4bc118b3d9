// Package fred implements the provider capability set against the FRED
// observations API.
package fred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
)

const (
	// maxResponseBytes caps in-memory response buffering.
	maxResponseBytes = 16 << 20

	// existenceTimeout bounds the lightweight series-exists probe.
	existenceTimeout = 5 * time.Second

	// errorBodyLimit truncates upstream error bodies in our error messages.
	errorBodyLimit = 500
)

// observation is one (date, value) record. value is a numeric string or the
// sentinel "." for days with no published rate.
type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

type apiError struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Client is a typed wrapper over the FRED HTTP API. All calls honor a
// per-request deadline, flow through a circuit breaker, and are rate limited.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient builds a FRED client from configuration.
func NewClient(cfg config.FredConfig) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).DialContext,
		IdleConnTimeout:       10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fred",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		httpClient: &http.Client{Transport: transport},
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 4),
		logger:     log.With().Str("component", "fred_client").Logger(),
	}
}

// Observations fetches the observation list for a series, optionally bounded
// below by start. The returned size is the raw body length in bytes.
func (c *Client) Observations(ctx context.Context, seriesID string, start *time.Time) (*observationsResponse, int64, error) {
	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	if start != nil {
		q.Set("observation_start", domain.FormatDate(*start))
	}

	body, size, err := c.get(ctx, "observations", c.baseURL+"/series/observations?"+q.Encode(), c.timeout)
	if err != nil {
		return nil, 0, err
	}

	var decoded observationsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, 0, domain.NewProviderUnavailable(
			fmt.Sprintf("provider returned unparseable body for series %s", seriesID), err)
	}
	return &decoded, size, nil
}

// SeriesExists probes the series endpoint: 200 means known, 400 and 404 mean
// unknown, anything else is a client error.
func (c *Client) SeriesExists(ctx context.Context, seriesID string) (bool, error) {
	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")

	status, err := c.statusOf(ctx, "series", c.baseURL+"/series?"+q.Encode(), existenceTimeout)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusOK:
		return true, nil
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return false, nil
	case status >= 500:
		return false, domain.NewProviderUnavailable(
			fmt.Sprintf("provider returned %d for series existence check", status), nil)
	default:
		return false, domain.NewProviderRejected(
			fmt.Sprintf("provider returned %d for series existence check", status), nil)
	}
}

// get performs one bounded GET through the breaker and rate limiter, mapping
// failures into the provider error taxonomy.
func (c *Client) get(ctx context.Context, endpoint, rawURL string, timeout time.Duration) ([]byte, int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, domain.NewProviderUnavailable("rate limiter interrupted", err)
	}

	// Latency is observed only for calls that reach the wire; breaker
	// rejections never do.
	requested := false
	statusLabel := "error"
	started := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, domain.NewInternal("failed to build provider request", err)
		}

		requested = true
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, domain.NewProviderUnavailable("provider request failed", err)
		}
		defer resp.Body.Close()
		statusLabel = strconv.Itoa(resp.StatusCode)

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, domain.NewProviderUnavailable("failed to read provider response", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, c.classifyError(resp.StatusCode, body)
		}
		return body, nil
	})
	if requested {
		metrics.ProviderRequestDuration.WithLabelValues(endpoint, statusLabel).
			Observe(time.Since(started).Seconds())
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, domain.NewProviderUnavailable("provider circuit breaker open", err)
		}
		return nil, 0, err
	}

	body := result.([]byte)
	return body, int64(len(body)), nil
}

// statusOf performs a GET and returns only the status code; transport
// failures map to ProviderUnavailable.
func (c *Client) statusOf(ctx context.Context, endpoint, rawURL string, timeout time.Duration) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, domain.NewProviderUnavailable("rate limiter interrupted", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, domain.NewInternal("failed to build provider request", err)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues(endpoint, "error").
			Observe(time.Since(started).Seconds())
		return 0, domain.NewProviderUnavailable("provider request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	metrics.ProviderRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(started).Seconds())
	return resp.StatusCode, nil
}

// classifyError maps a non-2xx response into the error taxonomy, decoding the
// FRED error envelope best-effort and truncating opaque bodies.
func (c *Client) classifyError(status int, body []byte) error {
	msg := fmt.Sprintf("provider returned %d", status)

	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.ErrorMessage != "" {
		msg = fmt.Sprintf("provider returned %d: %s", status, decoded.ErrorMessage)
	} else if len(body) > 0 {
		truncated := string(body)
		if len(truncated) > errorBodyLimit {
			truncated = truncated[:errorBodyLimit]
		}
		msg = fmt.Sprintf("provider returned %d: %s", status, truncated)
	}

	c.logger.Warn().Int("status", status).Msg("provider error response")

	if status >= 500 {
		return domain.NewProviderUnavailable(msg, nil)
	}
	return domain.NewProviderRejected(msg, nil)
}
