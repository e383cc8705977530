package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verdandi_api_request_duration_seconds",
		Help:    "Duration of HTTP API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_api_requests_total",
		Help: "Total number of HTTP API requests.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verdandi_api_active_connections",
		Help: "Number of HTTP requests currently being served.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verdandi_api_websocket_connections",
		Help: "Number of open websocket connections.",
	})
)

// Interval generation metrics.
var (
	IntervalsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_intervals_generated_total",
		Help: "Total number of intervals produced, by grouping.",
	}, []string{"grouping"})

	IntervalGenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verdandi_interval_generation_duration_seconds",
		Help:    "Time spent walking interval sequences.",
		Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1},
	}, []string{"grouping"})
)

// Export pipeline metrics.
var (
	ExportRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_export_runs_total",
		Help: "Total number of export job runs, by format and outcome.",
	}, []string{"format", "status"})

	ExportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_export_errors_total",
		Help: "Total number of export job failures, by stage.",
	}, []string{"stage"})
)

// Scheduler metrics.
var (
	SchedulerJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verdandi_scheduler_jobs_active",
		Help: "Number of export jobs currently registered with the scheduler.",
	})

	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_scheduler_ticks_total",
		Help: "Total number of scheduler health ticks.",
	})

	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_scheduler_errors_total",
		Help: "Total number of scheduler errors, by reason.",
	}, []string{"job_id", "reason"})
)

// Leader election metrics.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "verdandi_leader_election_status",
		Help: "Whether this instance currently holds leadership (1) or not (0).",
	}, []string{"instance"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_leader_election_changes_total",
		Help: "Total number of leadership transitions.",
	}, []string{"instance", "transition"})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verdandi_database_query_duration_seconds",
		Help:    "Duration of database operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_database_errors_total",
		Help: "Total number of database errors.",
	}, []string{"operation", "error_type"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verdandi_database_connections_active",
		Help: "Number of open database connections.",
	})
)

// Cache metrics.
var (
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_cache_hits_total",
		Help: "Total number of cache hits.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdandi_cache_misses_total",
		Help: "Total number of cache misses.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
