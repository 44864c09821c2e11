package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/gh-user-search/pkg/client"
	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const defaultUserAgent = "gh-user-search/0.1.0"

// config is resolved from flags, falling back to the environment (and .env)
// for every flag the user did not set.
type config struct {
	Endpoint    string
	PerPage     int
	UserAgent   string
	RedisURL    string
	LogLevel    logging.LogLevel
	LogPretty   bool
	MetricsAddr string
}

// flag name -> environment variable
var envFallbacks = map[string]string{
	"endpoint":     "GH_SEARCH_ENDPOINT",
	"per-page":     "GH_SEARCH_PER_PAGE",
	"user-agent":   "USER_AGENT",
	"redis-url":    "REDIS_URL",
	"log-level":    "LOG_LEVEL",
	"log-pretty":   "LOG_PRETTY",
	"metrics-addr": "METRICS_ADDR",
}

func bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("endpoint", search.DefaultEndpoint, "Search endpoint URL (env GH_SEARCH_ENDPOINT)")
	flags.Int("per-page", 0, "Results per page, 0 for the server default (env GH_SEARCH_PER_PAGE)")
	flags.String("user-agent", defaultUserAgent, "User-Agent sent to GitHub (env USER_AGENT)")
	flags.String("redis-url", "", "Redis URL for rate-limit state shared between processes (env REDIS_URL)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error, disabled (env LOG_LEVEL)")
	flags.Bool("log-pretty", false, "Human-readable log output (env LOG_PRETTY)")
	flags.String("metrics-addr", "", "Serve /metrics and /health on this address (env METRICS_ADDR)")
}

// loadConfig reads the persistent flags of cmd.
func loadConfig(cmd *cobra.Command) (config, error) {
	value := func(name string) string {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return ""
		}
		if !f.Changed {
			if env, ok := envFallbacks[name]; ok {
				return getEnv(env, f.Value.String())
			}
		}
		return f.Value.String()
	}

	var cfg config
	cfg.Endpoint = value("endpoint")
	cfg.UserAgent = value("user-agent")
	cfg.RedisURL = value("redis-url")
	cfg.MetricsAddr = value("metrics-addr")

	perPage, err := strconv.Atoi(value("per-page"))
	if err != nil {
		return config{}, fmt.Errorf("invalid per-page: %w", err)
	}
	cfg.PerPage = perPage

	level, err := logging.ParseLevel(value("log-level"))
	if err != nil {
		return config{}, err
	}
	cfg.LogLevel = level

	pretty, err := strconv.ParseBool(value("log-pretty"))
	if err != nil {
		return config{}, fmt.Errorf("invalid log-pretty: %w", err)
	}
	cfg.LogPretty = pretty

	if strings.TrimSpace(cfg.UserAgent) == "" {
		return config{}, fmt.Errorf("user-agent is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// connectRedis returns nil when no URL is configured. Both redis:// URLs and
// plain host:port addresses are accepted.
func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, nil
	}

	opts := &redis.Options{Addr: rawURL}
	if strings.Contains(rawURL, "://") {
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return redisClient, nil
}

// app bundles what both commands need.
type app struct {
	cfg     config
	redis   *redis.Client
	client  *client.Client
	machine *search.Machine
	metrics *metricsServer
}

// newApp must run after logging is set up: components capture their logger
// on construction.
func newApp(ctx context.Context, cfg config) (*app, error) {
	redisClient, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	ghClient, err := client.New(client.DefaultConfig(redisClient, cfg.UserAgent))
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	machine, err := search.NewMachine(search.MachineConfig{
		Endpoint: cfg.Endpoint,
		PerPage:  cfg.PerPage,
	})
	if err != nil {
		ghClient.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		redis:   redisClient,
		client:  ghClient,
		machine: machine,
	}

	if cfg.MetricsAddr != "" {
		a.metrics = startMetricsServer(cfg.MetricsAddr, redisClient)
	}

	return a, nil
}

func (a *app) Close() {
	if a.metrics != nil {
		a.metrics.Shutdown()
	}
	a.client.Close()
	if a.redis != nil {
		a.redis.Close()
	}
}
