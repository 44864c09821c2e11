// Package metrics provides the Prometheus registry and HTTP handler for the
// search client. All metrics are defined in their respective packages
// (client, ratelimit, search) to keep those packages self-contained.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer used by the search client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler exposing every registered metric in the
// Prometheus text format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - gh_search_rate_limit_remaining{resource} (Gauge): Requests left in the current window
//   - gh_search_rate_limit_blocks_total (Counter): Requests blocked because the window is exhausted
//   - gh_search_rate_limit_throttles_total (Counter): Requests delayed because the window is nearly exhausted
//
// Request Metrics (pkg/client):
//   - gh_search_requests_total{status} (Counter): Total requests by HTTP status
//   - gh_search_request_duration_seconds (Histogram): Request duration
//   - gh_search_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Search Metrics (pkg/search):
//   - gh_search_fetches_total{outcome} (Counter): Applied completions by outcome (success, transport, http, decode)
//   - gh_search_stale_responses_total (Counter): Completions dropped by the token check
//   - gh_search_results_accumulated (Gauge): Items accumulated in the current session
//
// Example Prometheus Queries:
//
//   # Stale Response Rate
//   rate(gh_search_stale_responses_total[5m])
//
//   # Quota Status
//   gh_search_rate_limit_remaining{resource="search"} < 3
//
//   # Failed Fetch Ratio
//   sum(rate(gh_search_fetches_total{outcome!="success"}[5m])) /
//   sum(rate(gh_search_fetches_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gh_search_request_duration_seconds_bucket[5m]))
