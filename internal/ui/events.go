package ui

import (
	"errors"
	"sync"

	"github.com/Aman-CERP/amanbib/internal/async"
)

// EventSink feeds index task events into a Renderer.
// It also counts failures so callers can fill CompletionStats.
type EventSink struct {
	r Renderer

	mu       sync.Mutex
	stages   map[string]Stage
	errors   int
	warnings int
	canceled bool
}

var _ async.Sink = (*EventSink)(nil)

// NewEventSink creates a sink that renders into r.
func NewEventSink(r Renderer) *EventSink {
	return &EventSink{r: r, stages: make(map[string]Stage)}
}

// Post implements async.Sink.
func (s *EventSink) Post(ev async.Event) {
	switch ev.Kind {
	case async.EventTaskState:
		s.taskState(ev)
	case async.EventTaskProgress:
		s.r.UpdateProgress(ProgressEvent{
			Stage:   s.stage(ev),
			Task:    ev.Title,
			Current: ev.Progress.Done,
			Total:   ev.Progress.Total,
			Message: ev.Progress.Message,
		})
	case async.EventIndexFailed, async.EventRebuildFailed:
		s.fail(ev.Title, ev.Err, ev.Message)
	}
}

func (s *EventSink) taskState(ev async.Event) {
	switch ev.State {
	case async.StateRunning:
		stage := StageForTask(ev.Title)
		s.mu.Lock()
		s.stages[ev.TaskID] = stage
		s.mu.Unlock()
		s.r.UpdateProgress(ProgressEvent{Stage: stage, Task: ev.Title, Message: ev.Title})
	case async.StateCanceled:
		s.mu.Lock()
		s.canceled = true
		delete(s.stages, ev.TaskID)
		s.mu.Unlock()
		s.r.AddError(ErrorEvent{Task: ev.Title, Err: errors.New("canceled"), IsWarn: true})
		s.count(true)
	case async.StateFailed:
		s.mu.Lock()
		delete(s.stages, ev.TaskID)
		s.mu.Unlock()
		s.fail(ev.Title, ev.Err, "")
	case async.StateCompleted:
		s.mu.Lock()
		delete(s.stages, ev.TaskID)
		s.mu.Unlock()
	}
}

func (s *EventSink) stage(ev async.Event) Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stages[ev.TaskID]; ok {
		return st
	}
	return StageForTask(ev.Title)
}

func (s *EventSink) fail(task string, err error, message string) {
	if err == nil {
		if message == "" {
			message = "failed"
		}
		err = errors.New(message)
	}
	s.r.AddError(ErrorEvent{Task: task, Err: err})
	s.count(false)
}

func (s *EventSink) count(warn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if warn {
		s.warnings++
	} else {
		s.errors++
	}
}

// Fill copies the failure counters into stats.
func (s *EventSink) Fill(stats *CompletionStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats.Errors = s.errors
	stats.Warnings = s.warnings
	stats.Canceled = stats.Canceled || s.canceled
}
