package async

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrExecutorClosed is the failure of tasks submitted after Close.
var ErrExecutorClosed = errors.New("executor closed")

// Executor runs tasks on a bounded pool of goroutines.
type Executor struct {
	sem    *semaphore.Weighted
	sink   Sink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSink sets the sink receiving task events.
func WithSink(s Sink) ExecutorOption {
	return func(e *Executor) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor running at most workers tasks at once.
// workers <= 0 means runtime.NumCPU().
func NewExecutor(workers int, opts ...ExecutorOption) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		sem:    semaphore.NewWeighted(int64(workers)),
		sink:   Discard,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	after *Task
}

// After delays the task until prev has finished, whatever its outcome.
func After(prev *Task) SubmitOption {
	return func(c *submitConfig) { c.after = prev }
}

// Submit schedules fn and returns its task immediately.
func (e *Executor) Submit(title string, fn Func, opts ...SubmitOption) *Task {
	var cfg submitConfig
	for _, o := range opts {
		o(&cfg)
	}
	t := newTask(e.ctx, title, e.sink)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		t.finishWithoutRunning(ErrExecutorClosed)
		return t
	}
	e.wg.Add(1)
	e.mu.Unlock()

	t.post(EventTaskState)
	go e.execute(t, fn, cfg.after)
	return t
}

func (e *Executor) execute(t *Task, fn Func, after *Task) {
	defer e.wg.Done()

	// Predecessors are awaited even when t is canceled so that t never
	// finishes before them.
	if after != nil {
		<-after.Done()
	}
	if err := e.sem.Acquire(t.ctx, 1); err != nil {
		t.run(fn)
		return
	}
	defer e.sem.Release(1)

	e.logger.Debug("task_started", slog.String("task", t.title), slog.String("id", t.id))
	t.run(fn)
	e.logger.Debug("task_finished",
		slog.String("task", t.title),
		slog.String("id", t.id),
		slog.String("state", t.State().String()),
		slog.Duration("elapsed", t.Elapsed()))
}

// Close cancels every pending and running task and waits for them.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

func (t *Task) finishWithoutRunning(err error) {
	t.finish(err)
	close(t.done)
}
