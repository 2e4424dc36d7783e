package pricing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderOutcomes counts price requests by provider and outcome kind.
	ProviderOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perf_provider_outcomes_total",
		Help: "Price and rate requests by provider and outcome",
	}, []string{"provider", "outcome"})

	// ProviderLatency tracks provider request duration.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perf_provider_latency_seconds",
		Help:    "Provider request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// CacheLookups counts cache lookups by result (hit or miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perf_cache_lookups_total",
		Help: "Series cache lookups",
	}, []string{"result"})
)
