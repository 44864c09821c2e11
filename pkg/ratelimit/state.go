// Package ratelimit implements GitHub rate limit tracking and request gating.
// It monitors the X-RateLimit-* response headers so that no further requests
// are sent once the quota of the current window is spent.
package ratelimit

import (
	"time"
)

// GitHub rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderUsed      = "X-RateLimit-Used"
	HeaderResource  = "X-RateLimit-Resource"
)

// Rate limit resources reported in X-RateLimit-Resource.
const (
	ResourceCore   = "core"
	ResourceSearch = "search"

	// DefaultResource is assumed for responses without X-RateLimit-Resource.
	DefaultResource = ResourceSearch
)

// DefaultSearchLimit is the unauthenticated search quota per minute. It is
// reported until the first response carries real numbers.
const DefaultSearchLimit = 10

// redisKeyPrefix namespaces the per-resource hashes shared through Redis.
const redisKeyPrefix = "ghsearch:rate_limit:"

// Hash fields of the per-resource state.
const (
	fieldLimit      = "limit"
	fieldRemaining  = "remaining"
	fieldReset      = "reset_timestamp"
	fieldLastUpdate = "last_update"
)

// Thresholds for rate limit decisions, in requests remaining.
const (
	// RemainingThresholdCritical blocks requests when remaining falls below this value.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning applies throttling when remaining falls below this value.
	RemainingThresholdWarning = 3

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 5
)

// RedisKey returns the Redis hash key holding the state of resource.
func RedisKey(resource string) string {
	return redisKeyPrefix + resource
}

// RateLimitState represents the rate limit window of one resource.
// With Redis configured, it is shared by every process using the same server.
type RateLimitState struct {
	// Resource is the rate limit bucket (search, core, ...).
	Resource string `json:"resource"`

	// Limit is the window size from X-RateLimit-Limit.
	Limit int `json:"limit"`

	// Remaining is the number of requests left from X-RateLimit-Remaining.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset, epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when the window is expired or Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Expired reports whether the window has reset since the state was recorded.
// A state without a reset time never expires.
func (s *RateLimitState) Expired() bool {
	return !s.ResetAt.IsZero() && !time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked until the window resets.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical && !s.Expired()
}

// NeedsThrottling returns true if requests should be delayed.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && !s.Expired() && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Expired() || s.Remaining >= RemainingThresholdHealthy
}

func defaultState(resource string) *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Resource:   resource,
		Limit:      DefaultSearchLimit,
		Remaining:  DefaultSearchLimit,
		ResetAt:    now.Add(time.Minute),
		LastUpdate: now,
		IsHealthy:  true,
	}
}
