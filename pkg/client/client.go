// Package client provides the GitHub HTTP client used as the search
// transport, with rate limit gating and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/Sternrassler/gh-user-search/pkg/ratelimit"
	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_search_requests_total",
		Help: "Total GitHub requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gh_search_request_duration_seconds",
		Help:    "GitHub request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_search_errors_total",
		Help: "Total GitHub request errors by class",
	}, []string{"class"})
)

// GitHub request headers.
const (
	AcceptHeader = "application/vnd.github+json"
	APIVersion   = "2022-11-28"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429, or 403 with an exhausted quota.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

var _ search.Transport = (*Client)(nil)

// Client is the GitHub HTTP client. It implements search.Transport.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis client for shared rate limit state (optional).
	// Without it the state is tracked per process.
	Redis *redis.Client

	// User-Agent header (REQUIRED by GitHub)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout bounds a single request including reading the body.
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64

	// ThrottleDelay is how long a request waits when the quota is nearly spent.
	ThrottleDelay time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		Redis:         redis,
		UserAgent:     userAgent,
		Timeout:       30 * time.Second,
		MaxBodyBytes:  10 << 20,
		ThrottleDelay: ratelimit.DefaultThrottleDelay,
	}
}

// New creates a new GitHub client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	if cfg.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("max_body_bytes must be positive (got %d)", cfg.MaxBodyBytes)
	}

	if cfg.ThrottleDelay < 0 {
		return nil, fmt.Errorf("throttle_delay must not be negative (got %s)", cfg.ThrottleDelay)
	}

	logger := logging.NewLogger("gh-client")

	rateLimiter := ratelimit.NewTracker(cfg.Redis, logging.NewLogger("ratelimit"))
	rateLimiter.SetThrottleDelay(cfg.ThrottleDelay)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limit gating and error
// classification. Responses with error statuses are returned, not converted
// to errors; the caller decides what a status means. The returned error is a
// *RequestError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := req.URL.String()

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Rate Limit
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx, ratelimit.ResourceSearch)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, &RequestError{ErrorClass: ErrorClassNetwork, Message: "rate limit check", Err: err}
	}
	if !allowed {
		c.logger.Warn().
			Str("url", target).
			Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues("rate_limited").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, &RequestError{ErrorClass: ErrorClassRateLimit, Message: "request blocked until reset", Err: ErrRateLimited}
	}

	// Step 2: Set GitHub headers
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("X-GitHub-Api-Version", APIVersion)

	c.logger.Debug().
		Str("url", target).
		Str("method", req.Method).
		Msg("Executing GitHub request")

	// Step 3: Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Str("url", target).Msg("HTTP request failed")
		return nil, &RequestError{ErrorClass: errClass, Message: "request failed", Err: err}
	}

	// Step 4: Update Rate Limit from headers
	if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("GitHub request error")
	}

	return resp, nil
}

// Fetch performs a GET of u and reads the whole body. It implements
// search.Transport: any status is returned as a Response, and only failures
// to obtain one are errors.
func (c *Client) Fetch(ctx context.Context, u *url.URL) (*search.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	return &search.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// classifyError categorizes a failure for observability.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		c.logger.Debug().Str("class", string(ErrorClassNetwork)).Msg("Error classified")
		return ErrorClassNetwork
	}

	switch {
	case isRateLimited(resp):
		c.logger.Debug().Str("class", string(ErrorClassRateLimit)).Msg("Error classified")
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.logger.Debug().Str("class", string(ErrorClassClient)).Msg("Error classified")
		return ErrorClassClient
	case resp.StatusCode >= 500:
		c.logger.Debug().Str("class", string(ErrorClassServer)).Msg("Error classified")
		return ErrorClassServer
	default:
		return ""
	}
}

// isRateLimited reports GitHub's rate limit responses: 429, or 403 with no
// requests remaining.
func isRateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get(ratelimit.HeaderRemaining) == "0"
	default:
		return false
	}
}

// Get performs a GET request to an absolute URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// RateLimitState returns the tracked state of the search quota.
func (c *Client) RateLimitState(ctx context.Context) (*ratelimit.RateLimitState, error) {
	return c.rateLimiter.GetState(ctx, ratelimit.ResourceSearch)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
