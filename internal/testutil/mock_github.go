// Package testutil provides testing utilities for the GitHub search client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SearchPath is the path MockGitHub serves user search on.
const SearchPath = "/search/users"

// DefaultPerPage is the page size used when a request carries no per_page.
const DefaultPerPage = 2

// MockUser is one user known to the mock search index.
type MockUser struct {
	ID        int64
	Login     string
	AvatarURL string
}

// MockGitHubResponse defines a canned response.
type MockGitHubResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable mock of the GitHub user search API. It pages
// through configured users and answers with GitHub-style Link and
// X-RateLimit-* headers.
type MockGitHub struct {
	server *httptest.Server

	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	users     map[string][]MockUser
	delays    map[string]time.Duration
	failures  []MockGitHubResponse
	perPage   int
	limit     int
	remaining int
	resetAt   time.Time

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requests          []string
}

// NewMockGitHub creates a new mock GitHub server with a quota of 30 requests.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		users:     make(map[string][]MockUser),
		delays:    make(map[string]time.Duration),
		perPage:   DefaultPerPage,
		limit:     30,
		remaining: 30,
		resetAt:   time.Now().Add(time.Minute),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests = append(mock.requests, r.URL.RequestURI())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		if r.URL.Path == SearchPath {
			mock.searchHandler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// SearchURL returns the absolute user search endpoint.
func (m *MockGitHub) SearchURL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetUsers sets the users matching query.
func (m *MockGitHub) SetUsers(query string, users ...MockUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[query] = users
}

// SetPerPage changes the page size used when a request carries no per_page.
func (m *MockGitHub) SetPerPage(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perPage = n
}

// SetQuota sets the rate limit window. Each search request spends one unit;
// once none remain, requests get 403 until reset.
func (m *MockGitHub) SetQuota(limit, remaining int, resetAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
	m.remaining = remaining
	m.resetAt = resetAt
}

// SetDelay delays every search response for query.
func (m *MockGitHub) SetDelay(query string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[query] = d
}

// FailNext queues a response returned instead of the next search result.
func (m *MockGitHub) FailNext(resp MockGitHubResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resp)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGitHub) SetResponse(path string, resp MockGitHubResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeCanned(w, r, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGitHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Requests returns the request URIs received, in order.
func (m *MockGitHub) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// GenerateUsers returns n users named prefix1..prefixN with IDs 1..n.
func GenerateUsers(prefix string, n int) []MockUser {
	users := make([]MockUser, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, MockUser{
			ID:        int64(i),
			Login:     fmt.Sprintf("%s%d", prefix, i),
			AvatarURL: fmt.Sprintf("https://avatars.githubusercontent.com/u/%d?v=4", i),
		})
	}
	return users
}

func (m *MockGitHub) searchHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("q")

	m.mu.Lock()
	delay := m.delays[query]
	var failure *MockGitHubResponse
	if len(m.failures) > 0 {
		failure = &m.failures[0]
		m.failures = m.failures[1:]
	}
	exhausted := m.remaining <= 0
	if !exhausted {
		m.remaining--
	}
	limit, remaining, resetAt := m.limit, m.remaining, m.resetAt
	users := m.users[query]
	perPage := m.perPage
	m.mu.Unlock()

	if !sleep(r, delay) {
		return
	}

	setRateLimitHeaders(w, limit, remaining, resetAt)

	if failure != nil {
		writeCanned(w, r, *failure)
		return
	}

	if exhausted {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"message":           "API rate limit exceeded",
			"documentation_url": "https://docs.github.com/rest/overview/resources-in-the-rest-api#rate-limiting",
		})
		return
	}

	if strings.TrimSpace(query) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Validation Failed"})
		return
	}

	if v := params.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = n
		}
	}
	page := 1
	if v := params.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	lastPage := (len(users) + perPage - 1) / perPage
	if lastPage == 0 {
		lastPage = 1
	}

	start := (page - 1) * perPage
	if start > len(users) {
		start = len(users)
	}
	end := start + perPage
	if end > len(users) {
		end = len(users)
	}

	if link := linkHeader(r, page, lastPage); link != "" {
		w.Header().Set("Link", link)
	}

	items := make([]map[string]any, 0, end-start)
	for _, u := range users[start:end] {
		items = append(items, map[string]any{
			"id":         u.ID,
			"login":      u.Login,
			"avatar_url": u.AvatarURL,
			"html_url":   "https://github.com/" + u.Login,
			"type":       "User",
			"score":      1.0,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_count":        len(users),
		"incomplete_results": false,
		"items":              items,
	})
}

// linkHeader builds the Link value in the order GitHub sends it.
func linkHeader(r *http.Request, page, lastPage int) string {
	pageURL := func(n int) string {
		u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
		params := r.URL.Query()
		params.Set("page", strconv.Itoa(n))
		u.RawQuery = params.Encode()
		return u.String()
	}

	var parts []string
	if page > 1 {
		parts = append(parts, fmt.Sprintf(`<%s>; rel="prev"`, pageURL(page-1)))
	}
	if page < lastPage {
		parts = append(parts,
			fmt.Sprintf(`<%s>; rel="next"`, pageURL(page+1)),
			fmt.Sprintf(`<%s>; rel="last"`, pageURL(lastPage)),
		)
	}
	if page > 1 {
		parts = append(parts, fmt.Sprintf(`<%s>; rel="first"`, pageURL(1)))
	}
	return strings.Join(parts, ", ")
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Used", strconv.Itoa(limit-remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	w.Header().Set("X-RateLimit-Resource", "search")
}

func writeCanned(w http.ResponseWriter, r *http.Request, resp MockGitHubResponse) {
	if !sleep(r, resp.Delay) {
		return
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sleep waits for d unless the request is canceled first.
func sleep(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}
