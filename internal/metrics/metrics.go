package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FetchTotal counts upstream fetches by capability and outcome.
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tezfolio_fetch_total",
			Help: "Upstream fetches by capability and outcome.",
		},
		[]string{"capability", "outcome"},
	)

	// FetchDuration observes upstream fetch latency by capability.
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tezfolio_fetch_duration_seconds",
			Help:    "Upstream fetch latency by capability.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	// CacheHits counts cache reads that returned a fresh entry.
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tezfolio_cache_hits_total",
		Help: "Cache reads satisfied by a fresh entry.",
	})

	// CacheMisses counts cache reads that found no fresh entry.
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tezfolio_cache_misses_total",
		Help: "Cache reads that found no fresh entry.",
	})

	// CacheEvictions counts entries removed by the background sweeps.
	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tezfolio_cache_evictions_total",
			Help: "Cache entries removed by the background sweeps.",
		},
		[]string{"reason"},
	)

	// LimiterQueueDepth tracks queued calls per provider queue.
	LimiterQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tezfolio_limiter_queue_depth",
			Help: "Calls waiting in each provider queue.",
		},
		[]string{"queue"},
	)

	// RefreshTotal counts wallet refreshes by outcome.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tezfolio_wallet_refresh_total",
			Help: "Wallet refreshes by outcome.",
		},
		[]string{"outcome"},
	)
)

// MustRegisterMetrics registers all collectors with the default registry.
// Call once from main before serving /metrics.
func MustRegisterMetrics() {
	prometheus.MustRegister(
		FetchTotal,
		FetchDuration,
		CacheHits,
		CacheMisses,
		CacheEvictions,
		LimiterQueueDepth,
		RefreshTotal,
	)
}
