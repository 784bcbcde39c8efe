package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		Library:       "/papers/refs.yaml",
		IndexPath:     "/papers/.amanbib/index",
		Status:        "ready",
		Entries:       120,
		Documents:     480,
		Fields:        14,
		LastIndexed:   time.Now().Add(-2 * time.Hour),
		IndexSize:     3 * 1024 * 1024,
		CacheSize:     512 * 1024,
		IndexPDFs:     true,
		WatcherStatus: "running",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a populated status
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(sampleStatus()))

	// Then: every section shows up
	out := buf.String()
	assert.Contains(t, out, "Index Status: /papers/refs.yaml")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "Entries:      120")
	assert.Contains(t, out, "Documents:    480")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "3.0 MB")
	assert.Contains(t, out, "512.0 KB")
	assert.Contains(t, out, "Linked PDFs: enabled")
	assert.Contains(t, out, "Watcher:     running")
	assert.NotContains(t, out, "Schema changed")
}

func TestStatusRenderer_InMemoryAndRebuildHint(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	info := sampleStatus()
	info.IndexPath = ""
	info.NeedsRebuild = true
	info.Error = "index locked"

	require.NoError(t, r.Render(info))

	out := buf.String()
	assert.Contains(t, out, "in memory")
	assert.Contains(t, out, "Schema changed")
	assert.Contains(t, out, "index locked")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a status
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering as JSON
	require.NoError(t, r.RenderJSON(sampleStatus()))

	// Then: the snake_case fields decode back
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/papers/refs.yaml", decoded["library"])
	assert.Equal(t, float64(480), decoded["documents"])
	assert.Equal(t, true, decoded["index_pdfs"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatTime(now))
	assert.Equal(t, "1 minute ago", formatTime(now.Add(-90*time.Second)))
	assert.Equal(t, "3 days ago", formatTime(now.Add(-73*time.Hour)))
	old := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, old.Format("2006-01-02 15:04"), formatTime(old))
}

func TestGetStyles(t *testing.T) {
	plain := GetStyles(true)
	assert.Equal(t, "x", plain.Error.Render("x"))
	assert.NotNil(t, GetStyles(false).Header)
}
