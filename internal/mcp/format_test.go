package mcp

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 10},
		{-5, 10},
		{1, 1},
		{50, 50},
		{500, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.in, 10, 1, 100), "limit %d", tt.in)
	}
}

func TestSnippet(t *testing.T) {
	// Given: text with irregular whitespace
	text := "graph   neural\n\nnetworks"

	// Then: short text is only normalized
	assert.Equal(t, "graph neural networks", snippet(text, 100))

	// And: long text is cut at a word boundary
	long := strings.Repeat("word ", 100)
	got := snippet(long, 42)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 43)
	assert.True(t, strings.HasSuffix(strings.TrimSuffix(got, "…"), "word"))
}

func TestFormatSearchResults(t *testing.T) {
	out := SearchOutput{
		Query:    "graph",
		Total:    2,
		Indexing: true,
		Results: []SearchResultOutput{
			{Kind: "entry", EntryID: "kipf2017", EntryType: "article", Score: 1.5,
				Fields: map[string]string{"year": "2017", "author": "Kipf"}},
			{Kind: "page", Path: "gnn.pdf", Page: 3, Score: 0.5,
				Entries: []string{"kipf2017"}, Snippet: "graph neural networks"},
		},
	}

	md := FormatSearchResults(out)

	assert.Contains(t, md, "Showing 2 of 2 matches")
	assert.Contains(t, md, "Indexing is still in progress")
	assert.Contains(t, md, "### 1. kipf2017 [article] (score: 1.50)")
	assert.Less(t, strings.Index(md, "**author:**"), strings.Index(md, "**year:**"))
	assert.Contains(t, md, "### 2. gnn.pdf, page 3 (score: 0.50)")
	assert.Contains(t, md, "**Linked by:** kipf2017")
	assert.Contains(t, md, "> graph neural networks")
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "zzz"`, FormatSearchResults(SearchOutput{Query: "zzz"}))
}
