package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts exposed operations by name and outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_queries_total",
			Help: "Total directory operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// QueryDuration observes operation latency in seconds, storage time included.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "directory_query_duration_seconds",
			Help:    "Directory operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	PaginationCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "directory_pagination_corrections_total",
			Help: "List calls re-issued at offset 0 because the requested offset exceeded the match count",
		},
	)

	// SearchFallbacks counts searches answered by the substring fallback.
	SearchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "directory_search_fallbacks_total",
			Help: "Searches that degraded to substring matching",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_http_requests_total",
			Help: "HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)
)
