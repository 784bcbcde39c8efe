package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageWaiting, "Waiting", "WAIT"},
		{StageClearing, "Clearing", "CLEAR"},
		{StageIndexing, "Indexing", "INDEX"},
		{StageComplete, "Complete", "DONE"},
		{Stage(42), "Unknown", "???"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestStageForTask(t *testing.T) {
	assert.Equal(t, StageClearing, StageForTask("Clearing index"))
	assert.Equal(t, StageClearing, StageForTask("Removing 3 entries from index"))
	assert.Equal(t, StageIndexing, StageForTask("Adding 12 entries to index"))
	assert.Equal(t, StageIndexing, StageForTask("Rebuilding fulltext search index"))
	assert.Equal(t, StageWaiting, StageForTask(""))
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestNewConfig_WithOptions(t *testing.T) {
	// Given: a buffer output and options
	buf := &bytes.Buffer{}

	// When: building the config
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithLibrary("/papers/refs.yaml"))

	// Then: every option is applied
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/papers/refs.yaml", cfg.Library)
}

func TestNewRenderer_FallsBackToPlain(t *testing.T) {
	// Given: a non-terminal output
	buf := &bytes.Buffer{}

	// Then: both forced and detected plain modes yield a PlainRenderer
	assert.IsType(t, &PlainRenderer{}, NewRenderer(NewConfig(buf)))
	assert.IsType(t, &PlainRenderer{}, NewRenderer(NewConfig(buf, WithForcePlain(true))))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}
