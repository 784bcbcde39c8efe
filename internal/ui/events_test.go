package ui

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanbib/internal/async"
)

// recordingRenderer keeps every call for inspection.
type recordingRenderer struct {
	mu       sync.Mutex
	progress []ProgressEvent
	errs     []ErrorEvent
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Complete(CompletionStats) {}
func (r *recordingRenderer) Stop() error { return nil }

func (r *recordingRenderer) UpdateProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, ev)
}

func (r *recordingRenderer) AddError(ev ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, ev)
}

func TestEventSink_ProgressCarriesTaskStage(t *testing.T) {
	// Given: a sink over a recording renderer
	rec := &recordingRenderer{}
	sink := NewEventSink(rec)

	// When: a clearing task starts and reports progress
	sink.Post(async.Event{Kind: async.EventTaskState, TaskID: "1", Title: "Clearing index", State: async.StateRunning})
	sink.Post(async.Event{Kind: async.EventTaskProgress, TaskID: "1", Title: "Clearing index",
		Progress: async.Progress{Done: 1, Total: 2, Message: "removed"}})

	// Then: both updates are rendered in the clearing stage
	require.Len(t, rec.progress, 2)
	assert.Equal(t, StageClearing, rec.progress[0].Stage)
	assert.Equal(t, "Clearing index", rec.progress[0].Message)
	assert.Equal(t, StageClearing, rec.progress[1].Stage)
	assert.Equal(t, 1, rec.progress[1].Current)
	assert.Equal(t, 2, rec.progress[1].Total)
}

func TestEventSink_CountsFailuresAndCancels(t *testing.T) {
	// Given: a sink
	rec := &recordingRenderer{}
	sink := NewEventSink(rec)

	// When: one task fails, one is canceled and the index reports a failure
	sink.Post(async.Event{Kind: async.EventTaskState, TaskID: "1", Title: "Adding 2 entries to index",
		State: async.StateFailed, Err: errors.New("disk full")})
	sink.Post(async.Event{Kind: async.EventTaskState, TaskID: "2", Title: "Rebuilding fulltext search index",
		State: async.StateCanceled})
	sink.Post(async.StatusEvent(async.EventIndexFailed, "/papers/refs.yaml", "index unavailable", nil))

	// Then: renderer and counters agree
	require.Len(t, rec.errs, 3)
	assert.EqualError(t, rec.errs[0].Err, "disk full")
	assert.True(t, rec.errs[1].IsWarn)
	assert.EqualError(t, rec.errs[2].Err, "index unavailable")

	var stats CompletionStats
	sink.Fill(&stats)
	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 1, stats.Warnings)
	assert.True(t, stats.Canceled)
}

func TestEventSink_IgnoresBookkeeping(t *testing.T) {
	rec := &recordingRenderer{}
	sink := NewEventSink(rec)

	sink.Post(async.Event{Kind: async.EventTaskState, TaskID: "1", State: async.StatePending})
	sink.Post(async.Event{Kind: async.EventTaskState, TaskID: "1", State: async.StateCompleted})
	sink.Post(async.StatusEvent(async.EventRebuildCompleted, "lib", "", nil))

	assert.Empty(t, rec.progress)
	assert.Empty(t, rec.errs)
}
