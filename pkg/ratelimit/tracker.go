package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gh_search_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window",
	}, []string{"resource"})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gh_search_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the rate limit window is exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gh_search_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the rate limit window is nearly exhausted",
	})
)

// DefaultThrottleDelay is how long a throttled request waits.
const DefaultThrottleDelay = time.Second

// resetGrace keeps a Redis entry alive briefly past its reset so readers see
// the expired window instead of a default.
const resetGrace = 5 * time.Second

// Tracker monitors GitHub rate limits and gates requests. With a Redis client
// the state is shared between processes; with nil it is kept in memory.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	throttleDelay time.Duration

	mu    sync.Mutex
	local map[string]RateLimitState
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
		local:         make(map[string]RateLimitState),
	}
}

// SetThrottleDelay changes the delay applied to throttled requests.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// Shared reports whether state is stored in Redis.
func (t *Tracker) Shared() bool {
	return t.redis != nil
}

// GetState returns the state of resource. A default healthy state is returned
// when nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context, resource string) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if state, ok := t.local[resource]; ok {
			state.UpdateHealth()
			return &state, nil
		}
		return defaultState(resource), nil
	}

	fields, err := t.redis.HGetAll(ctx, RedisKey(resource)).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Str("resource", resource).Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(resource), nil
	}

	state, err := stateFromHash(resource, fields)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// UpdateFromHeaders parses GitHub rate limit headers and records the state.
// Responses without X-RateLimit-Remaining are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetEpoch, err := strconv.ParseInt(strings.TrimSpace(resetStr), 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err = strconv.Atoi(strings.TrimSpace(limitStr))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	resource := strings.TrimSpace(headers.Get(HeaderResource))
	if resource == "" {
		resource = DefaultResource
	}

	state := RateLimitState{
		Resource:   resource,
		Limit:      limit,
		Remaining:  remain,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()

	if err := t.store(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.WithLabelValues(resource).Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Str("resource", resource).
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit exhausted - requests will be blocked until reset")
	case state.NeedsThrottling():
		t.logger.Warn().
			Str("resource", resource).
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Str("resource", resource).
			Int("remaining", remain).
			Int("limit", limit).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks whether a request against resource may be sent.
// It returns false when the window is exhausted. In the warning range it
// waits for the throttle delay first and returns ctx.Err() if ctx ends.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, resource string) (bool, error) {
	state, err := t.GetState(ctx, resource)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Str("resource", resource).
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit exhausted - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Str("resource", resource).
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("Rate limit low - throttling request")

		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}

func (t *Tracker) store(ctx context.Context, state RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local[state.Resource] = state
		t.mu.Unlock()
		return nil
	}

	key := RedisKey(state.Resource)
	pipe := t.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldLimit, state.Limit,
		fieldRemaining, state.Remaining,
		fieldReset, state.ResetAt.Unix(),
		fieldLastUpdate, state.LastUpdate.Format(time.RFC3339Nano),
	)
	pipe.ExpireAt(ctx, key, state.ResetAt.Add(resetGrace))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

func stateFromHash(resource string, fields map[string]string) (*RateLimitState, error) {
	state := &RateLimitState{Resource: resource}

	var err error
	if state.Limit, err = atoiField(fields, fieldLimit); err != nil {
		return nil, err
	}
	if state.Remaining, err = atoiField(fields, fieldRemaining); err != nil {
		return nil, err
	}

	reset, err := strconv.ParseInt(fields[fieldReset], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldReset, err)
	}
	state.ResetAt = time.Unix(reset, 0)

	if v := fields[fieldLastUpdate]; v != "" {
		if state.LastUpdate, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldLastUpdate, err)
		}
	}

	state.UpdateHealth()
	return state, nil
}

func atoiField(fields map[string]string, name string) (int, error) {
	n, err := strconv.Atoi(fields[name])
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
