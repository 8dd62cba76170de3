package worker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// blocker returns a task that signals when it starts and waits for release
func blocker(started chan<- struct{}, release <-chan struct{}) Task {
	return func(ctx context.Context) {
		started <- struct{}{}
		<-release
	}
}

func shutdown(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestPool_RunsTask(t *testing.T) {
	p := NewPool(Config{Core: 2, Max: 2, Queue: 4}, testLogger(), nil)

	done := make(chan struct{})
	require.NoError(t, p.Submit("test", func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	shutdown(t, p)
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestPool_QueueFullAtMaxWorkers(t *testing.T) {
	p := NewPool(Config{Core: 1, Max: 1, Queue: 1}, testLogger(), nil)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, p.Submit("blocking", blocker(started, release)))
	<-started

	require.NoError(t, p.Submit("queued", func(context.Context) {}))
	err := p.Submit("overflow", func(context.Context) {})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, p.Saturated())
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(release)
	shutdown(t, p)
	assert.Equal(t, int64(2), p.Stats().Completed)
}

func TestPool_TemporaryWorkerWhenQueueFull(t *testing.T) {
	p := NewPool(Config{Core: 1, Max: 2, Queue: 1, KeepAlive: 50 * time.Millisecond}, testLogger(), nil)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	require.NoError(t, p.Submit("core", blocker(started, release)))
	<-started

	require.NoError(t, p.Submit("queued", func(context.Context) {}))

	ran := make(chan struct{})
	require.NoError(t, p.Submit("overflow", func(context.Context) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("temporary worker did not run overflow task")
	}

	close(release)
	assert.Eventually(t, func() bool { return p.Stats().Workers == 1 }, 2*time.Second, 10*time.Millisecond)

	shutdown(t, p)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	p := NewPool(Config{Core: 1, Max: 1, Queue: 10}, testLogger(), nil)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, p.Submit("blocking", blocker(started, release)))
	<-started

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit("counted", func(context.Context) { count.Add(1) }))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdown(t, p)
	}()

	assert.Eventually(t, func() bool {
		return p.Submit("late", func(context.Context) {}) == ErrPoolClosed
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(5), count.Load())
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(Config{Core: 1, Max: 1, Queue: 4}, testLogger(), nil)

	require.NoError(t, p.Submit("panics", func(context.Context) { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit("after", func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped after panic")
	}

	shutdown(t, p)
	assert.Equal(t, int64(1), p.Stats().Panics)
}

func TestPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	p := NewPool(Config{Core: 1, Max: 1, Queue: 1}, testLogger(), nil)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, p.Submit("stuck", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("task context was not cancelled")
	}
}

type recorder struct {
	mu        sync.Mutex
	completed []string
	rejected  []string
}

func (r *recorder) RecordTaskCompleted(name string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, name)
}

func (r *recorder) RecordTaskRejected(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, name)
}

func (r *recorder) RecordTaskPanic(string)   {}
func (r *recorder) RecordPoolState(int, int) {}

func TestPool_MetricsRecorder(t *testing.T) {
	rec := &recorder{}
	p := NewPool(Config{Core: 1, Max: 1, Queue: 1}, testLogger(), rec)

	require.NoError(t, p.Submit("measured", func(context.Context) {}))
	shutdown(t, p)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"measured"}, rec.completed)
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, 5, c.Core)
	assert.Equal(t, 20, c.Max)
	assert.Equal(t, 100, c.Queue)
	assert.Equal(t, 60*time.Second, c.KeepAlive)
	assert.Equal(t, 30*time.Second, c.DrainTimeout)
}
