package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search server Prometheus metrics, labeled by backend type tag.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrag",
			Name:      "searches_total",
			Help:      "Total number of search calls",
		},
		[]string{"server_type", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lazyrag",
			Name:      "search_duration_seconds",
			Help:      "Search call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"server_type"},
	)

	EnsuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrag",
			Name:      "ensures_total",
			Help:      "Total number of ensure calls",
		},
		[]string{"server_type", "status"},
	)

	EnsureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lazyrag",
			Name:      "ensure_duration_seconds",
			Help:      "Ensure call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"server_type"},
	)

	EnsuredDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrag",
			Name:      "ensured_documents_total",
			Help:      "Total number of documents newly indexed by ensure",
		},
		[]string{"server_type"},
	)
)

var serverMetricsRegistered bool

// RegisterServerMetrics registers the server metrics with the default
// Prometheus registry. Must be called once per process.
func RegisterServerMetrics() {
	if serverMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(EnsuresTotal)
	prometheus.MustRegister(EnsureDuration)
	prometheus.MustRegister(EnsuredDocumentsTotal)
	serverMetricsRegistered = true
}
