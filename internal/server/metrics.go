package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric exported by this server.
const namespace = "edurag"

// serverMetrics holds the Prometheus instruments owned by one Server.
// They are registered on the server's own registry so tests can gather
// them in isolation.
type serverMetrics struct {
	// httpRequestsTotal counts API requests by method, logical handler
	// name, and response status code.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds observes request latency per handler.
	httpDurationSeconds *prometheus.HistogramVec
	// documentsIngestedTotal counts successfully completed ingests.
	documentsIngestedTotal prometheus.Counter
	// chunksIndexedTotal counts chunks written to the vector index.
	chunksIndexedTotal prometheus.Counter
	// ingestFailuresTotal counts failed ingests by pipeline stage.
	ingestFailuresTotal *prometheus.CounterVec
	// searchesTotal counts completed search requests.
	searchesTotal prometheus.Counter
	// searchResultsReturned observes the result count per search.
	searchResultsReturned prometheus.Histogram
}

// newServerMetrics registers the server's instruments on reg and returns
// them. Must be called once per registry.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),
		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by method and handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
		documentsIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents successfully processed through the pipeline.",
		}),
		chunksIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks embedded and written to the vector index.",
		}),
		ingestFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "failures_total",
			Help:      "Failed ingests by pipeline stage.",
		}, []string{"stage"}),
		searchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Completed search requests.",
		}),
		searchResultsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results_returned",
			Help:      "Result count per search after filtering and re-ranking.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
}
