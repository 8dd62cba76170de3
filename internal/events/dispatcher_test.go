package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-orchestrator/internal/worker"
)

// inlinePool runs tasks synchronously
type inlinePool struct {
	err error
}

func (p *inlinePool) Submit(_ string, fn worker.Task) error {
	if p.err != nil {
		return p.err
	}
	fn(context.Background())
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	d := NewDispatcher(&inlinePool{}, quietLogger())

	var got []Signal
	require.NoError(t, d.Handle(KindSuccess, func(_ context.Context, s Signal) { got = append(got, s) }))
	require.NoError(t, d.Handle(KindFailure, func(_ context.Context, s Signal) { got = append(got, s) }))

	require.NoError(t, d.Publish(NewFailure(7, "engine down")))
	require.NoError(t, d.Publish(NewSuccess(8, nil)))

	require.Len(t, got, 2)
	assert.Equal(t, KindFailure, got[0].Kind)
	assert.Equal(t, int64(7), got[0].BacktestID)
	assert.Equal(t, "engine down", got[0].Message)
	assert.Equal(t, KindSuccess, got[1].Kind)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestDispatcher_SingleHandlerPerKind(t *testing.T) {
	d := NewDispatcher(&inlinePool{}, quietLogger())
	noop := func(context.Context, Signal) {}

	require.NoError(t, d.Handle(KindSuccess, noop))
	assert.Error(t, d.Handle(KindSuccess, noop))
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d := NewDispatcher(&inlinePool{}, quietLogger())
	assert.Error(t, d.Publish(NewSuccess(1, nil)))
}

func TestDispatcher_PoolRejection(t *testing.T) {
	d := NewDispatcher(&inlinePool{err: worker.ErrQueueFull}, quietLogger())
	require.NoError(t, d.Handle(KindFailure, func(context.Context, Signal) {}))

	err := d.Publish(NewFailure(1, "x"))
	assert.True(t, errors.Is(err, worker.ErrQueueFull))
}

func TestDispatcher_WithRealPool(t *testing.T) {
	pool := worker.NewPool(worker.Config{Core: 1, Max: 1, Queue: 4}, quietLogger(), nil)
	d := NewDispatcher(pool, quietLogger())

	received := make(chan Signal, 1)
	require.NoError(t, d.Handle(KindSuccess, func(_ context.Context, s Signal) { received <- s }))
	require.NoError(t, d.Publish(NewSuccess(3, nil)))

	select {
	case s := <-received:
		assert.Equal(t, int64(3), s.BacktestID)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}
