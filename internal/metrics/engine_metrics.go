// Package metrics defines outbound dependency metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine metrics
var (
	EngineRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_requests_total",
		Help:      "Requests to the backtest engine by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	EngineRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_request_duration_seconds",
		Help:      "Backtest engine request latency including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint"})
	EngineCircuitOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "engine_circuit_open",
		Help:      "1 while the engine circuit breaker is open",
	})
)

// Report metrics
var (
	ReportRendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_renders_total",
		Help:      "Report renders by renderer and outcome",
	}, []string{"renderer", "outcome"})
	ReportRenderDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_render_duration_seconds",
		Help:      "Report render latency",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"renderer"})
)

// RecordEngineRequest records an engine call.
// outcome should be one of: "success", "http_error", "transport_error", "circuit_open"
func RecordEngineRequest(endpoint, outcome string, d time.Duration) {
	EngineRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	EngineRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetEngineCircuitOpen updates the circuit breaker gauge.
func SetEngineCircuitOpen(open bool) {
	if open {
		EngineCircuitOpen.Set(1)
		return
	}
	EngineCircuitOpen.Set(0)
}

// RecordReportRender records a report render.
func RecordReportRender(renderer, outcome string, d time.Duration) {
	ReportRendersTotal.WithLabelValues(renderer, outcome).Inc()
	ReportRenderDuration.WithLabelValues(renderer).Observe(d.Seconds())
}
