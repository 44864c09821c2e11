package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/gh-user-search/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const testUserAgent = "gh-user-search-test/1.0.0 (test@example.com)"

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, redisClient *redis.Client) *Client {
	t.Helper()

	cfg := DefaultConfig(redisClient, testUserAgent)
	cfg.ThrottleDelay = 10 * time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func setRateLimitHeaders(w http.ResponseWriter, remaining int, reset time.Time) {
	w.Header().Set(ratelimit.HeaderLimit, "10")
	w.Header().Set(ratelimit.HeaderRemaining, strconv.Itoa(remaining))
	w.Header().Set(ratelimit.HeaderReset, strconv.FormatInt(reset.Unix(), 10))
	w.Header().Set(ratelimit.HeaderResource, ratelimit.ResourceSearch)
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "empty user agent",
			mutate:      func(c *Config) { c.UserAgent = "" },
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "zero timeout",
			mutate:      func(c *Config) { c.Timeout = 0 },
			expectError: true,
			errorMsg:    "timeout must be positive (got 0s)",
		},
		{
			name:        "zero body limit",
			mutate:      func(c *Config) { c.MaxBodyBytes = 0 },
			expectError: true,
			errorMsg:    "max_body_bytes must be positive (got 0)",
		},
		{
			name:        "negative throttle delay",
			mutate:      func(c *Config) { c.ThrottleDelay = -time.Second },
			expectError: true,
			errorMsg:    "throttle_delay must not be negative (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(nil, testUserAgent)
			tt.mutate(&cfg)

			client, err := New(cfg)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	cfg := DefaultConfig(redisClient, testUserAgent)

	if cfg.Redis != redisClient {
		t.Error("Redis client not set correctly")
	}
	if cfg.UserAgent != testUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, testUserAgent)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
	if cfg.MaxBodyBytes <= 0 {
		t.Errorf("MaxBodyBytes = %d, should be > 0", cfg.MaxBodyBytes)
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		remaining  string
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: io.EOF, expected: ErrorClassNetwork},
		{name: "client error 404", statusCode: 404, expected: ErrorClassClient},
		{name: "client error 422", statusCode: 422, expected: ErrorClassClient},
		{name: "forbidden with quota left", statusCode: 403, remaining: "4", expected: ErrorClassClient},
		{name: "forbidden with quota exhausted", statusCode: 403, remaining: "0", expected: ErrorClassRateLimit},
		{name: "too many requests", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "server error 503", statusCode: 503, expected: ErrorClassServer},
		{name: "success 200", statusCode: 200, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode, Header: http.Header{}}
				if tt.remaining != "" {
					resp.Header.Set(ratelimit.HeaderRemaining, tt.remaining)
				}
			}

			result := client.classifyError(resp, tt.err)
			if result != tt.expected {
				t.Errorf("classifyError() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestDo_GitHubHeadersSet(t *testing.T) {
	var userAgent, accept, version string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		version = r.Header.Get("X-GitHub-Api-Version")
		setRateLimitHeaders(w, 9, time.Now().Add(time.Minute))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"total_count": 0, "items": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, nil)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/search/users?q=octocat", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	resp.Body.Close()

	if userAgent != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", userAgent, testUserAgent)
	}
	if accept != AcceptHeader {
		t.Errorf("Accept = %q, want %q", accept, AcceptHeader)
	}
	if version != APIVersion {
		t.Errorf("X-GitHub-Api-Version = %q, want %q", version, APIVersion)
	}
}

func TestDo_UpdatesRateLimitState(t *testing.T) {
	reset := time.Now().Add(40 * time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRateLimitHeaders(w, 6, reset)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, nil)

	resp, err := client.Get(context.Background(), server.URL+"/search/users?q=a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	resp.Body.Close()

	state, err := client.RateLimitState(context.Background())
	if err != nil {
		t.Fatalf("RateLimitState() error = %v", err)
	}
	if state.Remaining != 6 {
		t.Errorf("Remaining = %d, want 6", state.Remaining)
	}
	if state.ResetAt.Unix() != reset.Unix() {
		t.Errorf("ResetAt = %v, want %v", state.ResetAt, reset)
	}
}

func TestDo_RateLimitBlock(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		setRateLimitHeaders(w, 0, time.Now().Add(time.Minute))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, nil)

	// The first response spends the quota.
	resp, err := client.Get(context.Background(), server.URL+"/search/users?q=a")
	if err != nil {
		t.Fatalf("first Get() failed: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(context.Background(), server.URL+"/search/users?q=b")
	if err == nil {
		t.Fatal("Expected request to be blocked by rate limiter")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Error = %v, want ErrRateLimited", err)
	}
	if class, _ := Class(err); class != ErrorClassRateLimit {
		t.Errorf("Class = %q, want %q", class, ErrorClassRateLimit)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestDo_RateLimitBlockShared(t *testing.T) {
	redisClient := setupTestRedis(t)

	writer := ratelimit.NewTracker(redisClient, zerolog.Nop())
	h := http.Header{}
	h.Set(ratelimit.HeaderRemaining, "0")
	h.Set(ratelimit.HeaderReset, strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
	if err := writer.UpdateFromHeaders(context.Background(), h); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	client := newTestClient(t, redisClient)

	_, err := client.Get(context.Background(), "http://example.com/search/users?q=a")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Error = %v, want ErrRateLimited from shared state", err)
	}
}

func TestDo_ErrorStatusReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "Validation Failed"}`))
	}))
	defer server.Close()

	client := newTestClient(t, nil)

	resp, err := client.Get(context.Background(), server.URL+"/search/users?q=")
	if err != nil {
		t.Fatalf("Get() returned error for HTTP status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := newTestClient(t, nil)

	_, err := client.Get(context.Background(), serverURL+"/search/users?q=a")
	if err == nil {
		t.Fatal("Expected network error")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Error type = %T, want *RequestError", err)
	}
	if reqErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want %q", reqErr.ErrorClass, ErrorClassNetwork)
	}
}

func TestFetch(t *testing.T) {
	const body = `{"total_count": 1, "items": [{"id": 1, "login": "octocat"}]}`
	link := `<https://api.github.com/search/users?q=octocat&page=2>; rel="next"`

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Link", link)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(t, nil)

	resp, err := client.Fetch(context.Background(), mustParse(t, server.URL+"/search/users?q=octo+cat"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotQuery != "octo cat" {
		t.Errorf("server saw q = %q, want %q", gotQuery, "octo cat")
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != body {
		t.Errorf("Body = %q, want %q", resp.Body, body)
	}
	if resp.Header.Get("Link") != link {
		t.Errorf("Link = %q, want %q", resp.Header.Get("Link"), link)
	}
}

func TestFetch_ServerErrorIsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message": "Server Error"}`))
	}))
	defer server.Close()

	client := newTestClient(t, nil)

	resp, err := client.Fetch(context.Background(), mustParse(t, server.URL+"/search/users?q=a"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	cfg := DefaultConfig(nil, testUserAgent)
	cfg.MaxBodyBytes = 10
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := client.Fetch(context.Background(), mustParse(t, server.URL))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(resp.Body) != 10 {
		t.Errorf("len(Body) = %d, want 10", len(resp.Body))
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, mustParse(t, server.URL))
	if err == nil {
		t.Fatal("Expected error for canceled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSetHTTPClient(t *testing.T) {
	client := newTestClient(t, nil)

	var called bool
	client.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{}`)),
			Request:    r,
		}, nil
	})})

	resp, err := client.Fetch(context.Background(), mustParse(t, "https://api.github.com/search/users?q=a"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !called {
		t.Error("custom HTTP client was not used")
	}
	if string(resp.Body) != `{}` {
		t.Errorf("Body = %q, want {}", resp.Body)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
