package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/worker"
)

// HandlerFunc reacts to a signal
type HandlerFunc func(ctx context.Context, sig Signal)

// Publisher is what signal producers depend on
type Publisher interface {
	Publish(sig Signal) error
}

// Submitter is the part of the worker pool the dispatcher needs
type Submitter interface {
	Submit(name string, fn worker.Task) error
}

// Dispatcher delivers each signal to the single handler registered for its kind
type Dispatcher struct {
	pool  Submitter
	audit *logger.AuditLogger
	log   *logrus.Entry

	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher that runs handlers on pool
func NewDispatcher(pool Submitter, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		audit:    logger.NewAuditLogger(log),
		log:      log.WithField("component", "events"),
		handlers: make(map[Kind]HandlerFunc),
	}
}

// Handle registers fn for kind; a kind can only be bound once
func (d *Dispatcher) Handle(kind Kind, fn HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for %s signals", kind)
	}
	d.handlers[kind] = fn
	return nil
}

// Publish hands the signal to its handler on the pool without blocking
func (d *Dispatcher) Publish(sig Signal) error {
	d.mu.RLock()
	fn, ok := d.handlers[sig.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for %s signals", sig.Kind)
	}

	d.audit.LogSignal(sig.ID.String(), string(sig.Kind), sig.BacktestID, sig.Message)

	err := d.pool.Submit("signal."+string(sig.Kind), func(ctx context.Context) {
		fn(ctx, sig)
	})
	if err != nil {
		d.log.WithFields(logrus.Fields{
			"signal_id":   sig.ID.String(),
			"backtest_id": sig.BacktestID,
		}).WithError(err).Error("Signal rejected by worker pool")
		return err
	}
	return nil
}
