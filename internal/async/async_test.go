package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Post(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states(taskID string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.events {
		if ev.Kind == EventTaskState && ev.TaskID == taskID {
			out = append(out, ev.State)
		}
	}
	return out
}

func (r *recorder) progress(taskID string) []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Progress
	for _, ev := range r.events {
		if ev.Kind == EventTaskProgress && ev.TaskID == taskID {
			out = append(out, ev.Progress)
		}
	}
	return out
}

func wait(t *testing.T, task *Task) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-task.Done():
		return task.Err()
	case <-ctx.Done():
		t.Fatalf("task %q did not finish", task.Title())
		return nil
	}
}

func TestExecutor_CompletesTask(t *testing.T) {
	// Given an executor with a recording sink
	rec := &recorder{}
	e := NewExecutor(2, WithSink(rec))
	defer e.Close()

	// When submitting a task that reports progress
	task := e.Submit("add entries", func(t *Task) error {
		for i := 1; i <= 3; i++ {
			t.UpdateProgress(i, 3, "indexed")
		}
		return nil
	})

	// Then it completes and every transition and progress step is posted
	require.NoError(t, wait(t, task))
	assert.Equal(t, StateCompleted, task.State())
	assert.False(t, task.IsCanceled())
	assert.NotEmpty(t, task.ID())
	assert.Equal(t, []State{StatePending, StateRunning, StateCompleted}, rec.states(task.ID()))
	assert.Equal(t, []Progress{
		{Done: 1, Total: 3, Message: "indexed"},
		{Done: 2, Total: 3, Message: "indexed"},
		{Done: 3, Total: 3, Message: "indexed"},
	}, rec.progress(task.ID()))
	assert.Equal(t, 100.0, task.Progress().Percent())
}

func TestExecutor_FailedTask(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	boom := errors.New("boom")
	task := e.Submit("fails", func(*Task) error { return boom })

	assert.ErrorIs(t, wait(t, task), boom)
	assert.Equal(t, StateFailed, task.State())
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	task := e.Submit("panics", func(*Task) error { panic("bad") })

	require.Error(t, wait(t, task))
	assert.Equal(t, StateFailed, task.State())
	assert.Contains(t, task.Err().Error(), "bad")
}

func TestTask_CooperativeCancel(t *testing.T) {
	// Given a running batch that checks for cancellation between items
	e := NewExecutor(1)
	defer e.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var processed atomic.Int32
	task := e.Submit("batch", func(t *Task) error {
		for i := 0; i < 100; i++ {
			if t.IsCanceled() {
				return nil
			}
			processed.Add(1)
			if i == 0 {
				close(started)
				<-release
			}
		}
		return nil
	})

	// When it is canceled mid-batch
	<-started
	task.Cancel()
	close(release)

	// Then it stops early, ends Canceled and keeps its partial work
	assert.ErrorIs(t, wait(t, task), context.Canceled)
	assert.Equal(t, StateCanceled, task.State())
	assert.True(t, task.IsCanceled())
	assert.Equal(t, int32(1), processed.Load())
}

func TestTask_CanceledBeforeStart(t *testing.T) {
	// Given a single worker busy with another task
	e := NewExecutor(1)
	defer e.Close()

	block := make(chan struct{})
	first := e.Submit("first", func(*Task) error { <-block; return nil })

	var ran atomic.Bool
	second := e.Submit("second", func(*Task) error { ran.Store(true); return nil }, After(first))

	// When the queued task is canceled
	second.Cancel()
	close(block)

	// Then it never runs
	require.NoError(t, wait(t, first))
	assert.ErrorIs(t, wait(t, second), context.Canceled)
	assert.False(t, ran.Load())
	assert.Equal(t, StateCanceled, second.State())
}

func TestExecutor_AfterPreservesOrder(t *testing.T) {
	// Given a wide pool
	e := NewExecutor(8)
	defer e.Close()

	var mu sync.Mutex
	var order []int

	// When chaining tasks where earlier ones are slower
	var prev *Task
	var tasks []*Task
	for i := 0; i < 5; i++ {
		i := i
		var opts []SubmitOption
		if prev != nil {
			opts = append(opts, After(prev))
		}
		prev = e.Submit("step", func(*Task) error {
			time.Sleep(time.Duration(5-i) * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, opts...)
		tasks = append(tasks, prev)
	}

	// Then they run in submission order
	for _, task := range tasks {
		require.NoError(t, wait(t, task))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestExecutor_AfterCanceledPredecessorStillWaits(t *testing.T) {
	// Given a canceled predecessor that is still running
	e := NewExecutor(2)
	defer e.Close()

	release := make(chan struct{})
	var firstDone atomic.Bool
	first := e.Submit("first", func(*Task) error {
		<-release
		firstDone.Store(true)
		return nil
	})
	var sawFirstDone atomic.Bool
	second := e.Submit("second", func(*Task) error {
		sawFirstDone.Store(firstDone.Load())
		return nil
	}, After(first))

	first.Cancel()
	close(release)

	// Then the successor only starts after it has finished
	require.NoError(t, wait(t, second))
	assert.True(t, sawFirstDone.Load())
}

func TestExecutor_SubmitAfterClose(t *testing.T) {
	e := NewExecutor(1)
	e.Close()

	task := e.Submit("late", func(*Task) error { return nil })

	assert.ErrorIs(t, wait(t, task), ErrExecutorClosed)
	assert.Equal(t, StateFailed, task.State())
}

func TestTask_WaitRespectsContext(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	block := make(chan struct{})
	defer close(block)
	task := e.Submit("slow", func(*Task) error { <-block; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
}

func TestChanSink(t *testing.T) {
	// Given a sink with room for one event
	s := NewChanSink(1)

	// When posting two progress events
	s.Post(Event{Kind: EventTaskProgress})
	s.Post(Event{Kind: EventTaskProgress})

	// Then the second is dropped instead of blocking
	assert.Equal(t, int64(1), s.Dropped())
	ev := <-s.Events()
	assert.Equal(t, EventTaskProgress, ev.Kind)

	// And after Close posts are discarded without blocking
	s.Close()
	s.Post(StatusEvent(EventRebuildCompleted, "lib", "", nil))
	s.Post(StatusEvent(EventRebuildCompleted, "lib", "", nil))
	assert.Len(t, s.Events(), 0)
}

func TestMultiSink(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	s := MultiSink(a, nil, b)

	s.Post(StatusEvent(EventRebuildRequested, "lib", "rebuilding", nil))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.True(t, a.events[0].IsStatus())
}

func TestStatusTracker(t *testing.T) {
	// Given a fresh tracker
	tr := NewStatusTracker()
	assert.Equal(t, string(StatusIdle), tr.Snapshot().Status)

	// When a rebuild starts and a task reports progress
	tr.Post(StatusEvent(EventRebuildInProgress, "lib", "", nil))
	tr.Post(Event{Kind: EventTaskState, TaskID: "t1", Title: "Indexing", State: StateRunning})
	tr.Post(Event{Kind: EventTaskProgress, TaskID: "t1", Title: "Indexing",
		State: StateRunning, Progress: Progress{Done: 1, Total: 4, Message: "entry 1"}})

	// Then the snapshot reflects it
	snap := tr.Snapshot()
	assert.Equal(t, string(StatusRebuilding), snap.Status)
	assert.Equal(t, "Indexing", snap.Task)
	assert.Equal(t, 25.0, snap.ProgressPct)
	assert.Equal(t, 1, snap.ActiveTasks)
	assert.True(t, tr.IsIndexing())

	// When the task completes and the rebuild ends
	tr.Post(Event{Kind: EventTaskState, TaskID: "t1", State: StateCompleted})
	tr.Post(StatusEvent(EventRebuildCompleted, "lib", "", nil))

	// Then the index is ready
	snap = tr.Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.Equal(t, 1, snap.CompletedTasks)
	assert.NotNil(t, snap.LastRebuild)
	assert.False(t, tr.IsIndexing())

	// When the writer cannot be obtained
	tr.Post(StatusEvent(EventIndexFailed, "lib", "index locked", nil))

	// Then the error is surfaced
	snap = tr.Snapshot()
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, "index locked", snap.ErrorMessage)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "canceled", StateCanceled.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}
