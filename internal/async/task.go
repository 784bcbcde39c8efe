// Package async runs indexing work off the caller's goroutine as
// cancellable tasks that report progress to a caller-supplied Sink.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Task.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCanceled || s == StateFailed
}

// Progress is a task's running count and human-readable message.
type Progress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Percent returns completion in [0, 100]; 0 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Done) / float64(p.Total) * 100.0
	if pct > 100 {
		return 100
	}
	return pct
}

// Func is the body of a task. It checks t.IsCanceled between units of
// work and reports progress through t.UpdateProgress.
type Func func(t *Task) error

// Task is one scheduled operation.
type Task struct {
	id    string
	title string
	sink  Sink

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	state    State
	err      error
	progress Progress
	started  time.Time
	finished time.Time
}

func newTask(parent context.Context, title string, sink Sink) *Task {
	if sink == nil {
		sink = Discard
	}
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		id:     uuid.NewString(),
		title:  title,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Title returns the task's display title.
func (t *Task) Title() string { return t.title }

// Context is canceled when the task is canceled or finishes.
func (t *Task) Context() context.Context { return t.ctx }

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// State returns the current state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Err returns the failure cause of a failed task, or context.Canceled
// for a canceled one.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Progress returns the latest progress report.
func (t *Task) Progress() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// Elapsed returns the running time so far, or the total once finished.
func (t *Task) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch {
	case t.started.IsZero():
		return 0
	case t.finished.IsZero():
		return time.Since(t.started)
	default:
		return t.finished.Sub(t.started)
	}
}

// Cancel requests cooperative cancellation. Work already committed stays.
func (t *Task) Cancel() { t.cancel() }

// IsCanceled reports whether cancellation was requested.
func (t *Task) IsCanceled() bool {
	if s := t.State(); s.Terminal() {
		return s == StateCanceled
	}
	return t.ctx.Err() != nil
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateProgress records progress and posts it to the sink.
func (t *Task) UpdateProgress(done, total int, message string) {
	t.mu.Lock()
	t.progress = Progress{Done: done, Total: total, Message: message}
	t.mu.Unlock()
	t.post(EventTaskProgress)
}

func (t *Task) run(fn Func) {
	defer close(t.done)

	if t.ctx.Err() != nil {
		t.finish(context.Canceled)
		return
	}

	t.mu.Lock()
	t.state = StateRunning
	t.started = time.Now()
	t.mu.Unlock()
	t.post(EventTaskState)

	t.finish(safeCall(fn, t))
}

func safeCall(fn Func, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", t.title, r)
		}
	}()
	return fn(t)
}

func (t *Task) finish(err error) {
	canceled := t.ctx.Err() != nil

	t.mu.Lock()
	t.finished = time.Now()
	if t.started.IsZero() {
		t.started = t.finished
	}
	switch {
	case err != nil && !(canceled && errors.Is(err, context.Canceled)):
		t.state = StateFailed
		t.err = err
	case canceled:
		t.state = StateCanceled
		t.err = context.Canceled
	default:
		t.state = StateCompleted
	}
	t.mu.Unlock()
	t.cancel()
	t.post(EventTaskState)
}

func (t *Task) post(kind EventKind) {
	t.mu.RLock()
	ev := Event{
		Kind:     kind,
		TaskID:   t.id,
		Title:    t.title,
		State:    t.state,
		Progress: t.progress,
		Err:      t.err,
		Time:     time.Now(),
	}
	t.mu.RUnlock()
	t.sink.Post(ev)
}
