package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Sentinel errors for executors.
var (
	// ErrExecutorClosed indicates the executor no longer accepts tasks.
	ErrExecutorClosed = errors.New("executor closed")

	// ErrQueueFull indicates a non-blocking worker pool had no queue space.
	ErrQueueFull = errors.New("executor queue full")
)

// Task is a unit of deferred work. The executor supplies the context the
// task runs under.
type Task func(ctx context.Context)

// Executor runs fan-out tasks, either inline or deferred.
// Implementations must be safe for concurrent use.
type Executor interface {
	// Submit hands task to the executor. A deferred executor returns as soon
	// as the task is queued.
	Submit(ctx context.Context, task Task) error
}

// ImmediateExecutor runs tasks inline on the caller's goroutine.
type ImmediateExecutor struct{}

// Submit runs task before returning.
func (ImmediateExecutor) Submit(ctx context.Context, task Task) error {
	task(ctx)
	return nil
}

// WorkerPool runs tasks on a fixed set of goroutines fed by a bounded queue.
type WorkerPool struct {
	tasks    chan Task
	blocking bool
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithBlockingSubmit makes Submit wait for queue space (bounded by the
// submit context) instead of returning ErrQueueFull.
func WithBlockingSubmit() PoolOption {
	return func(p *WorkerPool) {
		p.blocking = true
	}
}

// WithPoolLogger sets the logger used to report task panics.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *WorkerPool) {
		p.logger = logger
	}
}

// NewWorkerPool starts workers goroutines consuming a queue of queueSize.
// Values below 1 are raised to 1.
func NewWorkerPool(workers, queueSize int, opts ...PoolOption) *WorkerPool {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		tasks:  make(chan Task, queueSize),
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker pool task panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	task(p.ctx)
}

// Submit queues task. It returns ErrExecutorClosed after Close, and
// ErrQueueFull when the queue is full unless the pool was built with
// WithBlockingSubmit.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrExecutorClosed
	}

	if p.blocking {
		select {
		case p.tasks <- task:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued tasks to finish.
// If ctx ends first, the context given to running tasks is cancelled and
// ctx's error is returned.
func (p *WorkerPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// TaskQueue collects tasks until the host calls Run, the way a web framework
// runs a request's background tasks after the response is written.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
}

// NewTaskQueue creates an empty task queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Submit appends task to the queue.
func (q *TaskQueue) Submit(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrExecutorClosed
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// Len returns the number of tasks waiting to run.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Run executes queued tasks in submission order, including tasks submitted
// while running, until the queue is empty or ctx ends.
func (q *TaskQueue) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return nil
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task(ctx)
	}
}

// Close rejects further submissions. Queued tasks can still be Run.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
