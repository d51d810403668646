package bus_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/grouphub/pkg/grouphub/bus"
)

func TestImmediateExecutor(t *testing.T) {
	ran := false
	err := bus.ImmediateExecutor{}.Submit(context.Background(), func(context.Context) { ran = true })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	pool := bus.NewWorkerPool(4, 100)

	var n atomic.Int32
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) { n.Add(1) }))
	}
	require.NoError(t, pool.Close(context.Background()))

	assert.Equal(t, int32(100), n.Load())
}

func TestWorkerPool_QueueFull(t *testing.T) {
	pool := bus.NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	// Worker busy; one slot in the queue.
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) {}))
	assert.ErrorIs(t, pool.Submit(context.Background(), func(context.Context) {}), bus.ErrQueueFull)

	close(release)
	require.NoError(t, pool.Close(context.Background()))
}

func TestWorkerPool_BlockingSubmit(t *testing.T) {
	pool := bus.NewWorkerPool(1, 1, bus.WithBlockingSubmit())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, func(context.Context) {}), context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Close(context.Background()))
}

func TestWorkerPool_SurvivesPanics(t *testing.T) {
	pool := bus.NewWorkerPool(1, 4)

	var ran atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) { ran.Store(true) }))
	require.NoError(t, pool.Close(context.Background()))

	assert.True(t, ran.Load())
}

func TestWorkerPool_CloseTimeout(t *testing.T) {
	pool := bus.NewWorkerPool(1, 1)
	release := make(chan struct{})
	defer close(release)

	var cancelled atomic.Bool
	started := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-release:
		}
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Close(ctx), context.DeadlineExceeded)

	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
	assert.NoError(t, pool.Close(context.Background()), "second close is a no-op")
	assert.ErrorIs(t, pool.Submit(context.Background(), func(context.Context) {}), bus.ErrExecutorClosed)
}

func TestTaskQueue(t *testing.T) {
	q := bus.NewTaskQueue()

	var mu sync.Mutex
	var order []int
	record := func(i int) bus.Task {
		return func(context.Context) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
		}
	}

	require.NoError(t, q.Submit(context.Background(), record(1)))
	require.NoError(t, q.Submit(context.Background(), func(ctx context.Context) {
		record(2)(ctx)
		// Submitted while running: still run by this Run.
		_ = q.Submit(ctx, record(3))
	}))
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Zero(t, q.Len())

	t.Run("cancelled run", func(t *testing.T) {
		q := bus.NewTaskQueue()
		require.NoError(t, q.Submit(context.Background(), record(4)))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, q.Run(ctx), context.Canceled)
		assert.Equal(t, 1, q.Len())
	})

	t.Run("closed", func(t *testing.T) {
		q := bus.NewTaskQueue()
		q.Close()
		assert.ErrorIs(t, q.Submit(context.Background(), record(5)), bus.ErrExecutorClosed)
	})
}
