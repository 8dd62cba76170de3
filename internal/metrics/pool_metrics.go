package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Worker pool metrics
var (
	PoolQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_queue_depth",
		Help:      "Tasks waiting in the worker pool queue",
	})
	PoolWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_workers",
		Help:      "Running worker goroutines",
	})
	PoolTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_pool_tasks_total",
		Help:      "Pool tasks by name and outcome",
	}, []string{"task", "outcome"})
	PoolTaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_pool_task_duration_seconds",
		Help:      "Pool task run time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})
)

// PoolRecorder feeds worker pool events into Prometheus.
type PoolRecorder struct{}

// RecordTaskCompleted implements worker.MetricsRecorder.
func (PoolRecorder) RecordTaskCompleted(name string, d time.Duration) {
	PoolTasksTotal.WithLabelValues(name, "completed").Inc()
	PoolTaskDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordTaskRejected implements worker.MetricsRecorder.
func (PoolRecorder) RecordTaskRejected(name string) {
	PoolTasksTotal.WithLabelValues(name, "rejected").Inc()
}

// RecordTaskPanic implements worker.MetricsRecorder.
func (PoolRecorder) RecordTaskPanic(name string) {
	PoolTasksTotal.WithLabelValues(name, "panic").Inc()
}

// RecordPoolState implements worker.MetricsRecorder.
func (PoolRecorder) RecordPoolState(queueDepth, workers int) {
	PoolQueueDepth.Set(float64(queueDepth))
	PoolWorkers.Set(float64(workers))
}
