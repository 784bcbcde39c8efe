package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/schema"
)

func TestBuildEntryDocument(t *testing.T) {
	// Given an entry with keyword lists, linked files and free text
	reg := schema.NewRegistry([]string{"keywords", "groups"}, "file")
	e := entry("smith2020", map[string]string{
		"title":    "Deep Learning",
		"keywords": "ml; nlp; search",
		"groups":   "reading; ml",
		"file":     "Paper:papers/smith.pdf:PDF;:notes.txt:Text",
		"note":     "   ",
	})

	// When building its header document with separator "; "
	doc := BuildEntryDocument(reg, e, "; ")

	// Then list fields are expanded into independent keyword values
	assert.Equal(t, schema.EntryDocID("smith2020"), doc.ID)
	assert.Equal(t, schema.KindEntry, doc.Kind())
	assert.Equal(t, []string{"smith2020"}, doc.Values(schema.EntryID))
	assert.Equal(t, []string{"article"}, doc.Values(schema.EntryType))
	assert.Equal(t, []string{"ml", "nlp", "search"}, doc.Values("keywords"))
	assert.Equal(t, []string{"reading", "ml"}, doc.Values("groups"))
	assert.Equal(t, []string{"papers/smith.pdf", "notes.txt"}, doc.Values("file"))
	assert.Equal(t, []string{"Deep Learning"}, doc.Values("title"))
	assert.False(t, doc.Has("note"))

	for _, f := range doc.Fields {
		switch f.Name {
		case "title":
			assert.Equal(t, schema.Text, f.Treatment)
		default:
			assert.Equal(t, schema.Keyword, f.Treatment, f.Name)
		}
	}

	// And every populated field is discoverable
	assert.Equal(t, []string{"file", "groups", "keywords", "title"}, reg.Fields())
}

func TestBibFields_AddToIndex(t *testing.T) {
	// Given an empty index
	st := newStore(t)
	entries := []*model.Entry{
		entry("a", map[string]string{"title": "Graph Algorithms", "keywords": "graphs, algorithms"}),
		entry("b", map[string]string{"title": "Compiler Design"}),
	}
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource(entries)})
	b := newBatch()

	// When adding the entries
	require.NoError(t, x.AddToIndex(b, entries))

	// Then each header document is retrievable by exact id
	assert.Equal(t, []string{schema.EntryDocID("a")}, ids(t, st, "id:a"))
	assert.Equal(t, []string{schema.EntryDocID("b")}, ids(t, st, "id:b"))
	assert.Equal(t, []string{schema.EntryDocID("a")}, ids(t, st, "keywords:graphs"))
	assert.Equal(t, []string{schema.EntryDocID("b")}, ids(t, st, "title:compiler"))

	// And progress was reported after each document
	progress := b.progress()
	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Done)
	assert.Equal(t, 2, progress[1].Total)
}

func TestBibFields_KeywordValuesMatchIndependently(t *testing.T) {
	st := newStore(t)
	e := entry("k", map[string]string{"keywords": "ml; nlp; search"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}, KeywordSeparator: "; "})

	require.NoError(t, x.AddToIndex(newBatch(), []*model.Entry{e}))

	for _, kw := range []string{"ml", "nlp", "search"} {
		assert.Equal(t, []string{schema.EntryDocID("k")}, ids(t, st, "keywords:"+kw), kw)
	}
	assert.Empty(t, ids(t, st, `keywords:"ml; nlp; search"`))
}

func TestBibFields_UpdateEntryDropsStaleValues(t *testing.T) {
	// Given an indexed entry with two keywords
	st := newStore(t)
	e := entry("a", map[string]string{"keywords": "old, kept", "title": "First"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}})
	require.NoError(t, x.AddToIndex(newBatch(), []*model.Entry{e}))

	// When the entry loses a keyword and a field
	updated := entry("a", map[string]string{"keywords": "kept"})
	require.NoError(t, x.UpdateEntry(newBatch(), updated))

	// Then only its latest state is indexed
	assert.Empty(t, ids(t, st, "keywords:old"))
	assert.Empty(t, ids(t, st, "title:first"))
	assert.Equal(t, []string{schema.EntryDocID("a")}, ids(t, st, "keywords:kept"))
	assert.EqualValues(t, 1, docCount(t, st))
	assert.NotContains(t, stored(t, st, schema.EntryDocID("a")), "title")
}

func TestBibFields_UpdateOnStartKeepsHeadersVisible(t *testing.T) {
	// Given an index holding an entry that is still in the library and
	// one that was dropped from it
	st := newStore(t)
	kept := entry("a", map[string]string{"title": "Kept"})
	gone := entry("gone", map[string]string{"title": "Gone"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{kept, gone}})
	require.NoError(t, x.AddToIndex(newBatch(), []*model.Entry{kept, gone}))

	// When updating on start against a library with a revised and a new entry
	revised := entry("a", map[string]string{"title": "Revised"})
	added := entry("b", map[string]string{"title": "Added"})
	x.source = sliceSource{revised, added}
	var seen []int
	b := newBatch()
	b.onProgress = func() { seen = append(seen, len(ids(t, st, "id:a"))) }
	require.NoError(t, x.UpdateOnStart(b))

	// Then the kept entry never disappeared and the index mirrors the library
	require.NotEmpty(t, seen)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
	assert.ElementsMatch(t, []string{schema.EntryDocID("a"), schema.EntryDocID("b")}, ids(t, st, ""))
	assert.Equal(t, []string{schema.EntryDocID("a")}, ids(t, st, "title:revised"))
}

func TestBibFields_RemoveFromIndexKeepsPages(t *testing.T) {
	// Given an entry and a page document in the same index
	st := newStore(t)
	e := entry("a", map[string]string{"title": "T", "file": "a.pdf"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}})
	require.NoError(t, x.AddToIndex(newBatch(), []*model.Entry{e}))
	page := schema.NewDocument(schema.PageDocID("a.pdf", 1), schema.KindPage)
	page.Add(schema.FilePath, "a.pdf", schema.Keyword)
	require.NoError(t, st.Index(context.Background(), page))

	// When removing the entry
	require.NoError(t, x.RemoveFromIndex(context.Background(), []*model.Entry{e}))

	// Then only the header document is gone
	assert.Equal(t, []string{schema.PageDocID("a.pdf", 1)}, ids(t, st, ""))
}

func TestBibFields_RebuildIsIdempotent(t *testing.T) {
	// Given a library
	st := newStore(t)
	var entries []*model.Entry
	for i := 0; i < 100; i++ {
		entries = append(entries, entry(fmt.Sprintf("e%03d", i), map[string]string{
			"title":    fmt.Sprintf("Title %d", i),
			"keywords": "shared, k" + fmt.Sprint(i%7),
		}))
	}
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource(entries)})

	// When rebuilding twice
	require.NoError(t, x.RebuildIndex(newBatch()))
	firstCount := docCount(t, st)
	firstDoc := stored(t, st, schema.EntryDocID("e042"))
	require.NoError(t, x.RebuildIndex(newBatch()))

	// Then count and content are unchanged
	assert.EqualValues(t, 100, firstCount)
	assert.Equal(t, firstCount, docCount(t, st))
	assert.Equal(t, firstDoc, stored(t, st, schema.EntryDocID("e042")))
	assert.Len(t, ids(t, st, "keywords:shared"), 100)
}

func TestBibFields_CancelKeepsCommittedDocuments(t *testing.T) {
	// Given a batch canceled after three documents
	st := newStore(t)
	var entries []*model.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(fmt.Sprintf("e%d", i), map[string]string{"title": "x"}))
	}
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource(entries)})
	b := newBatch()
	b.cancelAfter = 3

	// When adding all entries
	require.NoError(t, x.AddToIndex(b, entries))

	// Then the first three stay indexed and the rest were never added
	assert.EqualValues(t, 3, docCount(t, st))
	assert.Len(t, b.progress(), 3)
}

func TestBibFields_RemoveAllOnlyEntries(t *testing.T) {
	st := newStore(t)
	e := entry("a", map[string]string{"title": "T"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}})
	require.NoError(t, x.AddToIndex(newBatch(), []*model.Entry{e}))
	page := schema.NewDocument(schema.PageDocID("p.pdf", 1), schema.KindPage)
	require.NoError(t, st.Index(context.Background(), page))

	require.NoError(t, x.RemoveAllFromIndex(context.Background()))

	assert.Equal(t, []string{schema.PageDocID("p.pdf", 1)}, ids(t, st, ""))
}

func TestBibFields_AcquireSearchHandle(t *testing.T) {
	// Given a handle taken before a write
	st := newStore(t)
	e := entry("a", map[string]string{"title": "T"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}})
	defer x.Close()

	before, err := x.AcquireSearchHandle()
	require.NoError(t, err)
	n, err := before.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	// When acquiring again after the write
	require.NoError(t, x.AddToIndex(newBatch(), []*model.Entry{e}))
	after, err := x.AcquireSearchHandle()
	require.NoError(t, err)

	// Then the new handle sees it
	n, err = after.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestBibFields_ClosedStoreAborts(t *testing.T) {
	st := newStore(t)
	e := entry("a", map[string]string{"title": "T"})
	x := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}})
	require.NoError(t, st.Close())

	assert.Error(t, x.AddToIndex(newBatch(), []*model.Entry{e}))
}
