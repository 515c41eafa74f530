// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lattice_parse_duration_seconds",
		Help:    "Time to parse one markdown document into node records",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	ParseWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lattice_parse_warnings_total",
		Help: "Parser warnings emitted across all documents",
	})

	ParseNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lattice_parse_nodes",
		Help:    "Node count per parsed document",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})

	IndexJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_index_jobs_total",
		Help: "Index jobs by final status",
	}, []string{"status"})

	IndexQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lattice_index_queue_depth",
		Help: "Documents waiting for a parse worker",
	})

	MarkmapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lattice_markmap_duration_seconds",
		Help:    "Time to build a markmap response",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation"})

	CacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_cache_results_total",
		Help: "Render cache lookups by kind and result",
	}, []string{"kind", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_http_requests_total",
		Help: "HTTP requests by route and status class",
	}, []string{"route", "status"})
)

// ObserveSince records the time elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
