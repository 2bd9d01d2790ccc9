package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReindexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aia_reindex_duration_seconds",
			Help:    "Full reindex duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	ReindexTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aia_reindex_total",
			Help: "Total number of reindex runs",
		},
		[]string{"status"},
	)

	ChunksIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aia_chunks_indexed",
			Help: "Number of chunks produced by the last successful reindex",
		},
	)

	CollectionFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aia_collection_fetch_failures_total",
			Help: "Total content collection fetch failures",
		},
		[]string{"collection"},
	)

	EmbeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aia_embedding_requests_total",
			Help: "Total embedding provider requests",
		},
		[]string{"status"},
	)

	VectorsUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aia_vectors_upserted_total",
			Help: "Total vectors written to the vector store",
		},
	)

	OrphansPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aia_orphans_pruned_total",
			Help: "Total stale chunk vectors deleted after a reindex",
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aia_search_duration_seconds",
			Help:    "Search processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aia_search_total",
			Help: "Total number of searches processed",
		},
		[]string{"status"},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aia_search_results_count",
			Help:    "Number of context passages returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aia_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aia_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Collectors update
// fine without registration, which keeps tests free of global state.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ReindexDuration,
			ReindexTotal,
			ChunksIndexed,
			CollectionFetchFailures,
			EmbeddingRequests,
			VectorsUpserted,
			OrphansPruned,
			SearchDuration,
			SearchTotal,
			SearchResultsCount,
			CacheHits,
			CacheMisses,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
