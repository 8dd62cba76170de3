// Package metrics provides centralized Prometheus metrics registry for the backtest orchestrator.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backtest_orchestrator"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Lifecycle metrics
var (
	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Backtest status writes by target status",
	}, []string{"status"})
	BacktestsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtests_started_total",
		Help:      "Backtests handed to the engine",
	})
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Completion signals by kind and publish outcome",
	}, []string{"kind", "outcome"})
	BacktestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_duration_seconds",
		Help:      "Time from RUNNING to a terminal status",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
	})
	StuckBacktestsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stuck_backtests_failed_total",
		Help:      "RUNNING backtests failed by the watchdog",
	})
)

// Persistence metrics
var (
	PersistenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "persistence_duration_seconds",
		Help:      "Duration of result persistence phases",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
	CompensationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Compensating deletes after detail persistence failures",
	}, []string{"outcome"})
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route, method and status code",
	}, []string{"route", "method", "code"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "API request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(StatusTransitionsTotal)
		registry.MustRegister(BacktestsStartedTotal)
		registry.MustRegister(SignalsTotal)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(StuckBacktestsFailedTotal)

		registry.MustRegister(PersistenceDuration)
		registry.MustRegister(CompensationsTotal)

		registry.MustRegister(HTTPRequestsTotal)
		registry.MustRegister(HTTPRequestDuration)

		registry.MustRegister(EngineRequestsTotal)
		registry.MustRegister(EngineRequestDuration)
		registry.MustRegister(EngineCircuitOpen)
		registry.MustRegister(ReportRendersTotal)
		registry.MustRegister(ReportRenderDuration)

		registry.MustRegister(PoolQueueDepth)
		registry.MustRegister(PoolWorkers)
		registry.MustRegister(PoolTasksTotal)
		registry.MustRegister(PoolTaskDuration)

		registry.MustRegister(prometheus.NewGoCollector())
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordStatusTransition counts a status write.
func RecordStatusTransition(status string) {
	StatusTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordBacktestStarted counts a hand-off to the engine.
func RecordBacktestStarted() {
	BacktestsStartedTotal.Inc()
}

// RecordSignal counts a published or rejected signal.
// outcome should be one of: "published", "rejected"
func RecordSignal(kind, outcome string) {
	SignalsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordBacktestDuration records time spent RUNNING.
func RecordBacktestDuration(d time.Duration) {
	BacktestDuration.Observe(d.Seconds())
}

// RecordStuckBacktests counts jobs failed by the watchdog.
func RecordStuckBacktests(n int) {
	StuckBacktestsFailedTotal.Add(float64(n))
}

// RecordPersistencePhase records the duration of a persistence phase.
// phase should be one of: "summary", "details", "compensation"
func RecordPersistencePhase(phase string, d time.Duration) {
	PersistenceDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordCompensation counts a compensating delete.
// outcome should be one of: "success", "failure"
func RecordCompensation(outcome string) {
	CompensationsTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, method, code string, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, code).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
