// Package metrics holds the prometheus collectors of the note index.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// Operations
	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notedex_operations_total",
		Help: "The total number of index operations",
	}, []string{"op", "result"})

	OperationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notedex_operation_latency_seconds",
		Help:    "The latency of index operations",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"op"})

	// Search
	SearchResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notedex_search_results",
		Help:    "The number of results returned per search",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})

	// Indexer
	FilesIndexed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notedex_files_indexed_total",
		Help: "The total number of vault files applied to the index",
	}, []string{"source", "kind"})

	IndexerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notedex_indexer_errors_total",
		Help: "The total number of files the indexer failed to apply",
	}, []string{"source"})

	// Pools
	OpenIndexes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notedex_open_indexes",
		Help: "The current number of open index pools",
	})

	// Events
	SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notedex_sse_clients",
		Help: "The current number of connected event stream clients",
	})

	SSEDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notedex_sse_dropped_total",
		Help: "The total number of events dropped for slow clients",
	})
)

func init() {
	prometheus.MustRegister(Operations)
	prometheus.MustRegister(OperationLatency)
	prometheus.MustRegister(SearchResults)
	prometheus.MustRegister(FilesIndexed)
	prometheus.MustRegister(IndexerErrors)
	prometheus.MustRegister(OpenIndexes)
	prometheus.MustRegister(SSEClients)
	prometheus.MustRegister(SSEDropped)
}

// Observe records one finished operation started at start.
func Observe(op string, start time.Time, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	Operations.WithLabelValues(op, result).Inc()
	OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
