package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Query metrics
	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_queries_total",
			Help: "Total number of engine queries",
		},
		[]string{"kind", "status"}, // kind: premium|chart, status: responded|empty|<error code>
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "premiummeter_query_duration_seconds",
			Help:    "End-to-end query latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"kind"},
	)

	EmptyQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_empty_queries_total",
			Help: "Queries that returned no results, by the pipeline stage that came up empty",
		},
		[]string{"kind", "stage"}, // stage: strikes_resolved|cohorts_built
	)

	QueryResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "premiummeter_query_results",
			Help:    "Number of aggregated results per query",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"kind"},
	)

	// Engine metrics
	GreeksComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_greeks_computations_total",
			Help: "Per-record Greeks computations by outcome",
		},
		[]string{"outcome"}, // outcome: ok|missing_inputs|degenerate
	)

	// Cache metrics
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_cache_lookups_total",
			Help: "Result cache lookups",
		},
		[]string{"result"}, // result: hit|miss|error
	)

	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "premiummeter_cache_invalidations_total",
			Help: "Per-ticker cache generation bumps",
		},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "premiummeter_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"database", "operation"},
	)

	StoreReadWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "premiummeter_store_read_wait_seconds",
			Help:    "Time spent waiting on the store read limiter",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_kafka_messages_total",
			Help: "Total Kafka messages consumed",
		},
		[]string{"topic", "status"},
	)

	QueryLogFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premiummeter_query_log_flushes_total",
			Help: "Query log batch flushes",
		},
		[]string{"status"}, // status: success|failed
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Query metrics
	prometheus.MustRegister(Queries)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(EmptyQueries)
	prometheus.MustRegister(QueryResults)

	// Engine metrics
	prometheus.MustRegister(GreeksComputations)

	// Cache metrics
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(CacheInvalidations)

	// Database metrics
	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)
	prometheus.MustRegister(StoreReadWait)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(QueryLogFlushes)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordQuery records a finished query
func RecordQuery(kind, status string, duration time.Duration, results int) {
	Queries.WithLabelValues(kind, status).Inc()
	QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
	QueryResults.WithLabelValues(kind).Observe(float64(results))
}

// RecordEmptyQuery records the stage at which a query came up empty
func RecordEmptyQuery(kind, stage string) {
	EmptyQueries.WithLabelValues(kind, stage).Inc()
}

// RecordGreeks records a per-record Greeks outcome
func RecordGreeks(outcome string) {
	GreeksComputations.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup records a cache lookup
func RecordCacheLookup(hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a consumed Kafka message
func RecordKafkaMessage(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}

// RecordQueryLogFlush records a query log batch flush
func RecordQueryLogFlush(err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	QueryLogFlushes.WithLabelValues(status).Inc()
}
