package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: a progress update arrives
	r.UpdateProgress(ProgressEvent{
		Stage:   StageIndexing,
		Task:    "Adding 100 entries to index",
		Current: 50,
		Total:   100,
		Message: "Indexed 50 of 100 entries",
	})

	// Then: the line carries the stage tag, counters and message
	out := buf.String()
	assert.Contains(t, out, "[INDEX]")
	assert.Contains(t, out, "50/100")
	assert.Contains(t, out, "Indexed 50 of 100 entries")
	assert.NotContains(t, out, "\x1b[")
}

func TestPlainRenderer_ThrottlesWithinTask(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: many updates for one task arrive at once
	for i := 1; i <= 10; i++ {
		r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Task: "t", Current: i, Total: 10, Message: "m"})
	}

	// Then: only the first and the final update are printed
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1/10")
	assert.Contains(t, lines[1], "10/10")
}

func TestPlainRenderer_NewTaskIsNotThrottled(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Stage: StageClearing, Task: "Clearing index", Message: "Clearing index"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Task: "Rebuilding", Message: "Rebuilding"})

	out := buf.String()
	assert.Contains(t, out, "[CLEAR] Clearing index")
	assert.Contains(t, out, "[INDEX] Rebuilding")
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{Task: "Adding 2 entries to index", Err: errors.New("disk full")})
	r.AddError(ErrorEvent{Err: errors.New("canceled"), IsWarn: true})

	out := buf.String()
	assert.Contains(t, out, "ERROR: Adding 2 entries to index: disk full")
	assert.Contains(t, out, "WARN: canceled")
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with failures
	r.Complete(CompletionStats{
		Entries:   12,
		Documents: 40,
		Fields:    9,
		Duration:  1500 * time.Millisecond,
		Errors:    1,
	})
	require.NoError(t, r.Stop())

	// Then: the summary line is printed
	out := buf.String()
	assert.Contains(t, out, "Complete: 12 entries, 40 documents, 9 fields in 1.5s")
	assert.Contains(t, out, "(1 errors, 0 warnings)")
}

func TestPlainRenderer_CompleteCanceled(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Canceled: true})

	assert.True(t, strings.HasPrefix(buf.String(), "Canceled:"))
}
