// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts served requests by method, route template and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songbook_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency per route template.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "songbook_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// CacheLookups counts page cache hits and misses per key kind. Dropped
	// conditional fills are counted under kind "fill", result "stale".
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songbook_cache_lookups_total",
			Help: "Page cache lookups by key kind and result",
		},
		[]string{"kind", "result"},
	)

	// CacheErrors counts failed cache operations.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songbook_cache_errors_total",
			Help: "Page cache errors by operation",
		},
		[]string{"op"},
	)

	// UploadedBytes sums the bytes written to object storage per upload kind.
	UploadedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songbook_uploaded_bytes_total",
			Help: "Bytes forwarded to object storage by upload kind",
		},
		[]string{"kind"},
	)

	// Conflicts counts optimistic concurrency rejections.
	Conflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songbook_version_conflicts_total",
			Help: "Song writes rejected because of a stale updatedAt",
		},
	)
)
