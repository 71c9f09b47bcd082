package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/richxcame/ride-booking/pkg/logger"
	"github.com/richxcame/ride-booking/pkg/middleware"
	"github.com/richxcame/ride-booking/pkg/resilience"
	"github.com/richxcame/ride-booking/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ride-booking/httpclient"

// Client wraps http.Client with JSON helpers. Retries, when configured, are
// applied to GET only; writes are sent exactly once.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	retryConfig *resilience.RetryConfig
}

// Option configures the HTTP client
type Option func(*Client)

// WithRetry enables retry logic for reads with the given configuration
func WithRetry(config resilience.RetryConfig) Option {
	if config.RetryableChecker == nil {
		config.RetryableChecker = IsRetryable
	}
	return func(c *Client) {
		c.retryConfig = &config
	}
}

// NewClient creates a new HTTP client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Post sends body as JSON. It is never retried.
func (c *Client) Post(ctx context.Context, path string, body interface{}, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body, headers)
}

// Patch sends body as JSON. It is never retried.
func (c *Client) Patch(ctx context.Context, path string, body interface{}, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPatch, path, body, headers)
}

// Get makes a GET request, retrying transient failures when configured.
func (c *Client) Get(ctx context.Context, path string, headers map[string]string) ([]byte, error) {
	if c.retryConfig == nil {
		return c.do(ctx, http.MethodGet, path, nil, headers)
	}

	result, err := resilience.RetryWithName(ctx, *c.retryConfig, func(ctx context.Context) (interface{}, error) {
		return c.do(ctx, http.MethodGet, path, nil, headers)
	}, "GET "+path)
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(tracing.HTTPMethodKey.String(method), tracing.HTTPURLKey.String(c.baseURL+path))

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	injectCorrelationID(ctx, req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(tracing.HTTPStatusKey.Int(resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return respBody, nil
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the response status from err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether a failed call may be repeated. Network errors
// are retryable; HTTP errors only for transient statuses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return resilience.IsRetryableHTTPStatus(code)
	}
	return true
}

// IsClientError reports a 4xx answer, which says nothing about upstream health.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func injectCorrelationID(ctx context.Context, req *http.Request) {
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	}
}
