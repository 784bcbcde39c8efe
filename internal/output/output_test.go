package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Statusf("🔍", "Indexing %d entries", 3)

	// Then: output contains icon and message
	assert.Equal(t, "🔍 Indexing 3 entries\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "details")

	assert.Equal(t, "   details\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("Index rebuilt in %s", "2s")
	w.Warningf("%d files unreadable", 2)
	w.Errorf("cannot open %s", "refs.yaml")

	out := buf.String()
	assert.Contains(t, out, "✅ Index rebuilt in 2s")
	assert.Contains(t, out, "⚠️")
	assert.Contains(t, out, "2 files unreadable")
	assert.Contains(t, out, "❌ cannot open refs.yaml")
}

func TestWriter_Hit(t *testing.T) {
	// Given: a hit with details and a two-line snippet
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing it
	w.Hit(1, Hit{
		Title:   "knuth1984 [book]",
		Score:   1.234,
		Details: []string{"author: Knuth, Donald"},
		Snippet: "first\nsecond",
	})

	// Then: the title, details and snippet lines appear in order
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		" 1. knuth1984 [book] (1.23)",
		"    author: Knuth, Donald",
		"    │ first",
		"    │ second",
	}, lines)
}

func TestWriter_Table_AlignsValues(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Table([][2]string{{"title", "text"}, {"keywords", "keyword_list"}})

	assert.Equal(t, "  title     text\n  keywords  keyword_list\n", buf.String())
}

func TestWriter_NoColorHasNoEscapes(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewColored(buf, false)

	w.Warningf("plain")

	assert.NotContains(t, buf.String(), "\x1b[")
}
