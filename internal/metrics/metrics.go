// Package metrics holds the Prometheus instruments shared by the acquisition
// path and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts upstream API calls by source and result.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fbmc_upstream_requests_total",
		Help: "Upstream API requests by source and result",
	}, []string{"source", "result"})

	// UpstreamDuration tracks upstream call latency.
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fbmc_upstream_request_duration_seconds",
		Help:    "Upstream API request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"source"})

	// CacheHours counts requested hours by whether the cache satisfied them.
	CacheHours = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fbmc_cache_hours_total",
		Help: "Requested hourly buckets by cache outcome (hit, missing)",
	}, []string{"dataset", "outcome"})

	// CacheUnavailable counts reconciliations that fell through to a full fetch.
	CacheUnavailable = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fbmc_cache_unavailable_total",
		Help: "Reconciliations that could not read the cache",
	}, []string{"dataset"})

	// RowsPersisted counts rows newly written to the cache.
	RowsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fbmc_cache_rows_persisted_total",
		Help: "Rows inserted into the cache (ignored duplicates excluded)",
	}, []string{"dataset"})

	// RowsDropped counts ingested rows discarded before persistence.
	RowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fbmc_ingest_rows_dropped_total",
		Help: "Ingested rows dropped by reason",
	}, []string{"reason"})

	// HTTPRequests counts API requests served.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fbmc_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "status"})
)
