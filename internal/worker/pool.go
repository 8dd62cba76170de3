// Package worker provides the bounded background pool that runs engine
// submissions and completion handlers off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned when the queue is full and every worker slot is taken.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrPoolClosed is returned for submissions after Shutdown.
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Task is a unit of background work. ctx is cancelled only when shutdown runs out of time.
type Task func(ctx context.Context)

// MetricsRecorder is an optional interface for recording pool metrics.
type MetricsRecorder interface {
	RecordTaskCompleted(name string, duration time.Duration)
	RecordTaskRejected(name string)
	RecordTaskPanic(name string)
	RecordPoolState(queueDepth, workers int)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	QueueDepth    int   `json:"queue_depth"`
	QueueCapacity int   `json:"queue_capacity"`
	Workers       int   `json:"workers"`
	MaxWorkers    int   `json:"max_workers"`
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Rejected      int64 `json:"rejected"`
	Panics        int64 `json:"panics"`
}

type job struct {
	name string
	fn   Task
}

// Pool runs tasks on Core long-lived workers, adding temporary workers up to
// Max while the queue is full. Temporary workers exit after KeepAlive idle.
type Pool struct {
	cfg     Config
	queue   chan job
	log     *logrus.Entry
	metrics MetricsRecorder

	taskCtx    context.Context
	cancelTask context.CancelFunc

	mu       sync.Mutex
	workers  int
	closed   bool
	shutdown chan struct{}
	wg       sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// NewPool starts the core workers.
func NewPool(cfg Config, log *logrus.Logger, metrics MetricsRecorder) *Pool {
	cfg = cfg.withDefaults()
	taskCtx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:        cfg,
		queue:      make(chan job, cfg.Queue),
		log:        log.WithField("component", "worker_pool"),
		metrics:    metrics,
		taskCtx:    taskCtx,
		cancelTask: cancel,
		shutdown:   make(chan struct{}),
	}

	p.mu.Lock()
	for i := 0; i < cfg.Core; i++ {
		p.spawn(nil, false)
	}
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"core":  cfg.Core,
		"max":   cfg.Max,
		"queue": cfg.Queue,
	}).Info("Worker pool started")
	return p
}

// Submit queues fn without blocking.
func (p *Pool) Submit(name string, fn Task) error {
	j := job{name: name, fn: fn}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- j:
		p.submitted.Add(1)
		p.reportState()
		return nil
	default:
	}

	if p.workers < p.cfg.Max {
		p.spawn(&j, true)
		p.submitted.Add(1)
		p.reportState()
		return nil
	}

	p.rejected.Add(1)
	if p.metrics != nil {
		p.metrics.RecordTaskRejected(name)
	}
	p.log.WithFields(logrus.Fields{
		"task":    name,
		"workers": p.workers,
	}).Warn("Task rejected, pool saturated")
	return fmt.Errorf("%w: task %s", ErrQueueFull, name)
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	return Stats{
		QueueDepth:    len(p.queue),
		QueueCapacity: cap(p.queue),
		Workers:       workers,
		MaxWorkers:    p.cfg.Max,
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Rejected:      p.rejected.Load(),
		Panics:        p.panics.Load(),
	}
}

// Saturated reports whether the next submission would be rejected.
func (p *Pool) Saturated() bool {
	s := p.Stats()
	return s.QueueDepth >= s.QueueCapacity && s.Workers >= s.MaxWorkers
}

// DrainTimeout is the configured shutdown budget.
func (p *Pool) DrainTimeout() time.Duration {
	return p.cfg.DrainTimeout
}

// Shutdown stops intake and waits for queued tasks to finish. When ctx
// expires first the task context is cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.shutdown)
	p.mu.Unlock()

	p.log.WithField("queued", len(p.queue)).Info("Worker pool shutting down")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelTask()
		p.log.WithFields(logrus.Fields{
			"completed": p.completed.Load(),
			"rejected":  p.rejected.Load(),
		}).Info("Worker pool shutdown complete")
		return nil
	case <-ctx.Done():
		p.cancelTask()
		p.log.WithField("remaining", len(p.queue)).Warn("Worker pool shutdown timed out")
		return ctx.Err()
	}
}

// spawn must be called with p.mu held.
func (p *Pool) spawn(first *job, temporary bool) {
	p.workers++
	p.wg.Add(1)
	go p.worker(first, temporary)
}

func (p *Pool) worker(first *job, temporary bool) {
	defer p.wg.Done()
	defer p.exit()

	if first != nil {
		p.run(*first)
	}

	var idle *time.Timer
	if temporary {
		idle = time.NewTimer(p.cfg.KeepAlive)
		defer idle.Stop()
	}

	for {
		select {
		case j := <-p.queue:
			p.run(j)
			if idle != nil {
				idle.Reset(p.cfg.KeepAlive)
			}
		case <-idleC(idle):
			return
		case <-p.shutdown:
			p.drainQueue()
			return
		}
	}
}

// drainQueue runs remaining tasks after the shutdown signal.
func (p *Pool) drainQueue() {
	for {
		select {
		case j := <-p.queue:
			p.run(j)
		default:
			return
		}
	}
}

func (p *Pool) exit() {
	p.mu.Lock()
	p.workers--
	p.reportState()
	p.mu.Unlock()
}

func (p *Pool) run(j job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.metrics != nil {
				p.metrics.RecordTaskPanic(j.name)
			}
			p.log.WithFields(logrus.Fields{
				"task":  j.name,
				"panic": fmt.Sprint(r),
			}).Error("Task panicked")
			return
		}
		p.completed.Add(1)
		if p.metrics != nil {
			p.metrics.RecordTaskCompleted(j.name, time.Since(start))
		}
	}()

	j.fn(p.taskCtx)
}

// reportState must be called with p.mu held.
func (p *Pool) reportState() {
	if p.metrics != nil {
		p.metrics.RecordPoolState(len(p.queue), p.workers)
	}
}

func idleC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
