// Package metrics holds the process counters exported on --metrics-addr.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	CompletionAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thesisgo",
		Subsystem: "llm",
		Name:      "completion_attempts_total",
		Help:      "Completion attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	CompletionFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thesisgo",
		Subsystem: "llm",
		Name:      "fallback_responses_total",
		Help:      "Canned responses served by topic.",
	}, []string{"topic"})

	QuotesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thesisgo",
		Subsystem: "market",
		Name:      "quotes_fetched_total",
		Help:      "Validated quotes by provenance.",
	}, []string{"source"})

	SymbolsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thesisgo",
		Subsystem: "market",
		Name:      "symbols_dropped_total",
		Help:      "Symbols excluded after every source failed validation.",
	})

	StageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thesisgo",
		Subsystem: "agents",
		Name:      "stage_failures_total",
		Help:      "Agent stages that recorded an error.",
	}, []string{"stage"})

	PagesCrawled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thesisgo",
		Subsystem: "crawl",
		Name:      "pages_total",
		Help:      "Crawled pages by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		CompletionAttempts,
		CompletionFallbacks,
		QuotesFetched,
		SymbolsDropped,
		StageFailures,
		PagesCrawled,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
