package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_search_fetches_total",
		Help: "Completed page fetches by outcome (success, transport, http, decode)",
	}, []string{"outcome"})

	staleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gh_search_stale_responses_total",
		Help: "Completions dropped because their token no longer matched the in-flight request",
	})

	resultsAccumulated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gh_search_results_accumulated",
		Help: "Number of results accumulated in the most recently updated session",
	})
)
