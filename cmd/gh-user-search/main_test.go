package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/gh-user-search/internal/testutil"
	"github.com/Sternrassler/gh-user-search/pkg/client"
	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready_without_redis", func(t *testing.T) {
		w := httptest.NewRecorder()
		readyHandler(nil)(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer redisClient.Close()

		w := httptest.NewRecorder()
		readyHandler(redisClient)(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	// Creating a client makes sure the client and ratelimit metrics are registered.
	c, err := client.New(client.DefaultConfig(nil, "test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	w := httptest.NewRecorder()
	newMux(nil).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	for _, name := range []string{
		"gh_search_request_duration_seconds",
		"gh_search_rate_limit_blocks_total",
		"gh_search_stale_responses_total",
	} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func newConfigCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	bindFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v): %v", args, err)
	}
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, env := range envFallbacks {
		t.Setenv(env, "")
	}

	cfg, err := loadConfig(newConfigCommand(t))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Endpoint != search.DefaultEndpoint {
		t.Errorf("Endpoint = %q, want %q", cfg.Endpoint, search.DefaultEndpoint)
	}
	if cfg.UserAgent != defaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, defaultUserAgent)
	}
	if cfg.PerPage != 0 || cfg.RedisURL != "" || cfg.MetricsAddr != "" || cfg.LogPretty {
		t.Errorf("unexpected non-default config: %+v", cfg)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("GH_SEARCH_ENDPOINT", "http://localhost:9999/search/users")
	t.Setenv("GH_SEARCH_PER_PAGE", "50")
	t.Setenv("USER_AGENT", "env-agent/1.0")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("REDIS_URL", "")
	t.Setenv("METRICS_ADDR", "")

	cfg, err := loadConfig(newConfigCommand(t, "--per-page", "10", "--metrics-addr", ":9090"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Endpoint != "http://localhost:9999/search/users" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.PerPage != 10 {
		t.Errorf("PerPage = %d, want flag value 10", cfg.PerPage)
	}
	if cfg.UserAgent != "env-agent/1.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.LogLevel != logging.LevelDebug || !cfg.LogPretty {
		t.Errorf("logging config = %q pretty=%v", cfg.LogLevel, cfg.LogPretty)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "per page not a number", env: map[string]string{"GH_SEARCH_PER_PAGE": "many"}},
		{name: "unknown log level", args: []string{"--log-level", "loud"}},
		{name: "bad log pretty", env: map[string]string{"LOG_PRETTY": "maybe"}},
		{name: "blank user agent", args: []string{"--user-agent", "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, env := range envFallbacks {
				t.Setenv(env, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := loadConfig(newConfigCommand(t, tt.args...)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestConnectRedis(t *testing.T) {
	redisClient, err := connectRedis(context.Background(), "")
	if err != nil || redisClient != nil {
		t.Errorf("connectRedis(\"\") = %v, %v; want nil, nil", redisClient, err)
	}

	if _, err := connectRedis(context.Background(), "http://localhost:6379"); err == nil {
		t.Error("Expected error for non-redis scheme")
	}
}

func TestItemWriter(t *testing.T) {
	items := []search.Item{
		{ID: 1, Name: "octocat", AvatarURL: "https://avatars.githubusercontent.com/u/1"},
		{ID: 2, Name: "monalisa"},
	}

	tests := []struct {
		format string
		want   string
	}{
		{
			format: "tsv",
			want:   "1\toctocat\thttps://avatars.githubusercontent.com/u/1\n2\tmonalisa\t\n",
		},
		{
			format: "json",
			want: `{"id":1,"login":"octocat","avatar_url":"https://avatars.githubusercontent.com/u/1"}` + "\n" +
				`{"id":2,"login":"monalisa"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			write, err := itemWriter(tt.format, &buf)
			if err != nil {
				t.Fatalf("itemWriter() error = %v", err)
			}
			if err := write(items); err != nil {
				t.Fatalf("write() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}

	if _, err := itemWriter("xml", io.Discard); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func newCollectFixture(t *testing.T) (*testutil.MockGitHub, *search.Machine, *client.Client) {
	t.Helper()

	mock := testutil.NewMockGitHub()
	t.Cleanup(mock.Close)
	mock.SetUsers("octocat", testutil.GenerateUsers("octocat", 5)...)

	c, err := client.New(client.DefaultConfig(nil, "test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	machine, err := search.NewMachine(search.MachineConfig{Endpoint: mock.SearchURL()})
	if err != nil {
		t.Fatalf("Failed to create machine: %v", err)
	}

	return mock, machine, c
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name      string
		maxPages  int
		wantPages int
		wantIDs   []int64
	}{
		{name: "first page only", maxPages: 1, wantPages: 1, wantIDs: []int64{1, 2}},
		{name: "two pages", maxPages: 2, wantPages: 2, wantIDs: []int64{1, 2, 3, 4}},
		{name: "all pages", maxPages: 0, wantPages: 3, wantIDs: []int64{1, 2, 3, 4, 5}},
		{name: "more pages than exist", maxPages: 10, wantPages: 3, wantIDs: []int64{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, machine, c := newCollectFixture(t)

			var got []int64
			pages, err := collect(context.Background(), machine, c, "octocat", tt.maxPages, func(items []search.Item) error {
				for _, item := range items {
					got = append(got, item.ID)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("collect() error = %v", err)
			}

			if pages != tt.wantPages {
				t.Errorf("pages = %d, want %d", pages, tt.wantPages)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Errorf("ids = %v, want %v", got, tt.wantIDs)
					break
				}
			}
			if mock.GetRequestCount() != tt.wantPages {
				t.Errorf("requests = %d, want %d", mock.GetRequestCount(), tt.wantPages)
			}
		})
	}
}

func TestCollect_Failure(t *testing.T) {
	mock, machine, c := newCollectFixture(t)
	mock.FailNext(testutil.MockGitHubResponse{StatusCode: http.StatusServiceUnavailable})

	_, err := collect(context.Background(), machine, c, "octocat", 0, func([]search.Item) error { return nil })

	var fetchErr *search.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *search.FetchError, got %v", err)
	}
	if fetchErr.Kind != search.KindHTTP || fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("fetch error = %v", fetchErr)
	}
}

func TestCollect_InvalidQuery(t *testing.T) {
	_, machine, c := newCollectFixture(t)

	_, err := collect(context.Background(), machine, c, "  ", 1, func([]search.Item) error { return nil })
	if !errors.Is(err, search.ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}

func TestCollect_EmitError(t *testing.T) {
	_, machine, c := newCollectFixture(t)
	boom := errors.New("stdout closed")

	_, err := collect(context.Background(), machine, c, "octocat", 0, func([]search.Item) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Expected emit error, got %v", err)
	}
}
