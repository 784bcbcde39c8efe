package async

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies an Event.
type EventKind string

const (
	// EventTaskState is posted on every task state transition.
	EventTaskState EventKind = "task_state"
	// EventTaskProgress is posted after each unit of work.
	EventTaskProgress EventKind = "task_progress"

	EventRebuildRequested  EventKind = "rebuild_requested"
	EventRebuildInProgress EventKind = "rebuild_in_progress"
	EventRebuildCompleted  EventKind = "rebuild_completed"
	EventRebuildFailed     EventKind = "rebuild_failed"

	// EventIndexFailed is the single summary notification posted when the
	// index cannot be written at all.
	EventIndexFailed EventKind = "index_failed"
)

// Event is a progress or status notification.
type Event struct {
	Kind     EventKind
	TaskID   string
	Title    string
	State    State
	Progress Progress
	Library  string
	Message  string
	Err      error
	Time     time.Time
}

// IsStatus reports whether the event is a user-facing status notification
// rather than task bookkeeping.
func (e Event) IsStatus() bool {
	return e.Kind != EventTaskState && e.Kind != EventTaskProgress
}

// StatusEvent creates a user-facing status notification.
func StatusEvent(kind EventKind, library, message string, err error) Event {
	return Event{Kind: kind, Library: library, Message: message, Err: err, Time: time.Now()}
}

// Sink receives events. Post must be safe for concurrent use and must not
// block for long; it runs on the worker goroutine.
type Sink interface {
	Post(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Post calls f(ev).
func (f SinkFunc) Post(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// MultiSink posts every event to each sink in order.
func MultiSink(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(ev Event) {
		for _, s := range live {
			s.Post(ev)
		}
	})
}

// ChanSink delivers events over a buffered channel. Progress events are
// dropped while the buffer is full; other events wait for room.
type ChanSink struct {
	ch      chan Event
	closed  chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan Event, buffer), closed: make(chan struct{})}
}

// Events returns the receive side.
func (c *ChanSink) Events() <-chan Event { return c.ch }

// Post implements Sink. Events posted after Close are discarded.
func (c *ChanSink) Post(ev Event) {
	select {
	case <-c.closed:
		return
	default:
	}
	if ev.Kind == EventTaskProgress {
		select {
		case c.ch <- ev:
		default:
			c.dropped.Add(1)
		}
		return
	}
	select {
	case c.ch <- ev:
	case <-c.closed:
	}
}

// Dropped returns the number of discarded progress events.
func (c *ChanSink) Dropped() int64 { return c.dropped.Load() }

// Close stops delivery. The channel itself is left open so concurrent
// posts never panic.
func (c *ChanSink) Close() {
	c.once.Do(func() { close(c.closed) })
}

// IndexingStatus represents the overall indexing state.
type IndexingStatus string

const (
	StatusIdle       IndexingStatus = "idle"
	StatusIndexing   IndexingStatus = "indexing"
	StatusRebuilding IndexingStatus = "rebuilding"
	StatusReady      IndexingStatus = "ready"
	StatusError      IndexingStatus = "error"
)

// StatusSnapshot is an immutable copy of a StatusTracker.
type StatusSnapshot struct {
	Status         string     `json:"status"`
	Task           string     `json:"task,omitempty"`
	Done           int        `json:"done"`
	Total          int        `json:"total"`
	ProgressPct    float64    `json:"progress_pct"`
	Message        string     `json:"message,omitempty"`
	ActiveTasks    int        `json:"active_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	FailedTasks    int        `json:"failed_tasks"`
	CanceledTasks  int        `json:"canceled_tasks"`
	LastRebuild    *time.Time `json:"last_rebuild,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// StatusTracker is a Sink that folds events into a queryable status.
type StatusTracker struct {
	mu sync.RWMutex

	status      IndexingStatus
	rebuilding  bool
	active      map[string]Event
	current     string
	completed   int
	failed      int
	canceled    int
	lastRebuild time.Time
	errMessage  string
}

// NewStatusTracker creates an idle tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: StatusIdle, active: make(map[string]Event)}
}

// Post implements Sink.
func (s *StatusTracker) Post(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventTaskProgress:
		s.active[ev.TaskID] = ev
		s.current = ev.TaskID
	case EventTaskState:
		switch ev.State {
		case StateRunning:
			s.active[ev.TaskID] = ev
			s.current = ev.TaskID
		case StateCompleted:
			s.completed++
			delete(s.active, ev.TaskID)
		case StateCanceled:
			s.canceled++
			delete(s.active, ev.TaskID)
		case StateFailed:
			s.failed++
			delete(s.active, ev.TaskID)
			if ev.Err != nil {
				s.errMessage = ev.Err.Error()
			}
		}
	case EventRebuildRequested, EventRebuildInProgress:
		s.rebuilding = true
	case EventRebuildCompleted:
		s.rebuilding = false
		s.lastRebuild = ev.Time
	case EventRebuildFailed, EventIndexFailed:
		s.rebuilding = false
		s.status = StatusError
		s.errMessage = ev.Message
		if ev.Err != nil {
			s.errMessage = ev.Err.Error()
		}
		return
	}
	s.status = s.derive()
}

func (s *StatusTracker) derive() IndexingStatus {
	switch {
	case s.rebuilding:
		return StatusRebuilding
	case len(s.active) > 0:
		return StatusIndexing
	case s.completed+s.failed+s.canceled == 0 && s.lastRebuild.IsZero():
		if s.status == StatusError {
			return StatusError
		}
		return StatusIdle
	default:
		return StatusReady
	}
}

// IsIndexing reports whether any task is still running.
func (s *StatusTracker) IsIndexing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active) > 0 || s.rebuilding
}

// Snapshot returns a copy of the current state.
func (s *StatusTracker) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		Status:         string(s.status),
		ActiveTasks:    len(s.active),
		CompletedTasks: s.completed,
		FailedTasks:    s.failed,
		CanceledTasks:  s.canceled,
		ErrorMessage:   s.errMessage,
	}
	if ev, ok := s.active[s.current]; ok {
		snap.Task = ev.Title
		snap.Done = ev.Progress.Done
		snap.Total = ev.Progress.Total
		snap.ProgressPct = ev.Progress.Percent()
		snap.Message = ev.Progress.Message
	}
	if !s.lastRebuild.IsZero() {
		t := s.lastRebuild
		snap.LastRebuild = &t
	}
	return snap
}
