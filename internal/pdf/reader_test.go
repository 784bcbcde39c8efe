package pdf

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/pdf/pdftest"
	"github.com/Aman-CERP/amanbib/internal/schema"
)

type memCache struct {
	mu    sync.Mutex
	blobs map[string][]byte
	gets  int
	puts  int
}

func newMemCache() *memCache { return &memCache{blobs: map[string][]byte{}} }

func (c *memCache) key(path string, modified int64) string {
	return path + "@" + strconv.FormatInt(modified, 10)
}

func (c *memCache) Get(_ context.Context, path string, modified int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.blobs[c.key(path, modified)]
	return b, ok
}

func (c *memCache) Put(_ context.Context, path string, modified int64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.blobs[c.key(path, modified)] = data
	return nil
}

func (c *memCache) Invalidate(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.blobs {
		if strings.HasPrefix(k, path+"@") {
			delete(c.blobs, k)
		}
	}
	return nil
}

func TestReadPdfContents_TwoPages(t *testing.T) {
	// Given a two-page PDF with wrapped text and an annotation
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "paper.pdf",
		pdftest.Page{Lines: []string{"Hello", "World"}, Annotations: []string{"note one", "note two"}},
		pdftest.Page{Lines: []string{"infor-", "mation retrieval."}},
	)
	file := model.LinkedFile{Link: "paper.pdf", FileType: "PDF"}

	// When reading its contents
	docs := NewReader().ReadPdfContents(context.Background(), file, path)

	// Then there is one document per page carrying the link as path
	require.Len(t, docs, 2)
	first, second := docs[0], docs[1]

	assert.Equal(t, schema.PageDocID("paper.pdf", 1), first.ID)
	assert.Equal(t, schema.KindPage, first.Kind())
	assert.Equal(t, []string{"paper.pdf"}, first.Values(schema.FilePath))
	assert.Equal(t, []string{"1"}, first.Values(schema.FilePageNumber))
	assert.Equal(t, []string{"Hello World"}, first.Values(schema.FileContent))
	assert.Equal(t, []string{"note one\nnote two"}, first.Values(schema.FileAnnotations))
	require.Len(t, first.Values(schema.FileModified), 1)

	assert.Equal(t, schema.PageDocID("paper.pdf", 2), second.ID)
	assert.Equal(t, []string{"2"}, second.Values(schema.FilePageNumber))
	assert.Equal(t, []string{"information retrieval."}, second.Values(schema.FileContent))
	assert.False(t, second.Has(schema.FileAnnotations))
}

func TestReadPdfContents_ModifiedSeconds(t *testing.T) {
	// Given a PDF with a known modification time
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "a.pdf", pdftest.Page{Lines: []string{"x"}})
	info, err := os.Stat(path)
	require.NoError(t, err)

	// When reading it
	docs := NewReader().ReadPdfContents(context.Background(), model.LinkedFile{Link: "a.pdf"}, path)

	// Then the timestamp is stored in Unix seconds
	require.NotEmpty(t, docs)
	assert.Equal(t, []string{strconv.FormatInt(info.ModTime().Unix(), 10)}, docs[0].Values(schema.FileModified))
}

func TestReadPdfContents_BlankPageHasNoContent(t *testing.T) {
	// Given a PDF whose only page shows nothing
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "blank.pdf", pdftest.Page{})

	// When reading it
	docs := NewReader().ReadPdfContents(context.Background(), model.LinkedFile{Link: "blank.pdf"}, path)

	// Then the page document exists without a content field
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"1"}, docs[0].Values(schema.FilePageNumber))
	assert.False(t, docs[0].Has(schema.FileContent))
}

func TestReadPdfContents_Fallbacks(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.pdf")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not a pdf at all, just some plain text"), 0o644))
	empty := pdftest.Write(t, dir, "empty.pdf")

	tests := []struct {
		name         string
		path         string
		wantModified bool
	}{
		{"corrupt file", corrupt, true},
		{"zero pages", empty, true},
		{"missing file", filepath.Join(dir, "missing.pdf"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given an unusable file
			file := model.LinkedFile{Link: filepath.Base(tt.path)}

			// When reading it
			docs := NewReader().ReadPdfContents(context.Background(), file, tt.path)

			// Then exactly one metadata-only document is produced
			require.Len(t, docs, 1)
			d := docs[0]
			assert.Equal(t, schema.PageDocID(file.Link, 1), d.ID)
			assert.Equal(t, []string{file.Link}, d.Values(schema.FilePath))
			assert.Equal(t, []string{"1"}, d.Values(schema.FilePageNumber))
			assert.False(t, d.Has(schema.FileContent))
			assert.False(t, d.Has(schema.FileAnnotations))
			assert.Equal(t, tt.wantModified, d.Has(schema.FileModified))
		})
	}
}

func TestReadPdfContents_TooLarge(t *testing.T) {
	// Given a reader with a tiny size limit
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "big.pdf", pdftest.Page{Lines: []string{"content"}})
	r := NewReader(WithMaxFileSize(10))

	// When reading the file
	docs := r.ReadPdfContents(context.Background(), model.LinkedFile{Link: "big.pdf"}, path)

	// Then only the fallback document is produced
	require.Len(t, docs, 1)
	assert.False(t, docs[0].Has(schema.FileContent))
}

func TestExtract_UsesCache(t *testing.T) {
	// Given a reader with a cache
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "c.pdf", pdftest.Page{Lines: []string{"cached text"}})
	cache := newMemCache()
	r := NewReader(WithCache(cache))
	ctx := context.Background()

	// When extracting the same file twice
	first := r.Extract(ctx, path, 42, true)
	second := r.Extract(ctx, path, 42, true)

	// Then it is parsed once and served from the cache afterwards
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.puts)
	assert.Equal(t, 2, cache.gets)
	require.Len(t, second.Pages, 1)
	assert.Equal(t, "cached text", second.Pages[0].Content)

	// And a different modification time misses
	r.Extract(ctx, path, 43, true)
	assert.Equal(t, 2, cache.puts)
}

func TestExtract_FailuresNotCached(t *testing.T) {
	// Given a corrupt file and a cache
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\ngarbage"), 0o644))
	cache := newMemCache()

	// When extracting it
	ex := NewReader(WithCache(cache)).Extract(context.Background(), path, 1, true)

	// Then the failure is reported and not stored
	assert.True(t, ex.Failed)
	assert.Zero(t, cache.puts)
}

func TestLocalPDFs(t *testing.T) {
	// Given an entry linking a local PDF, a text file and a URL
	entry := model.NewEntry("e1", "article", map[string]string{
		"file": ":docs/one.pdf:PDF;:notes.txt:Text;:https\\://example.org/x.pdf:PDF;two.PDF",
	})

	// When selecting the local PDFs
	files := LocalPDFs(entry, "file")

	// Then the text file and the URL are left out
	links := make([]string, 0, len(files))
	for _, f := range files {
		links = append(links, f.Link)
	}
	assert.Equal(t, []string{"docs/one.pdf", "two.PDF"}, links)
}

func TestReader_ForgetDropsCachedExtraction(t *testing.T) {
	// Given a PDF read once through a cache
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "a.pdf", pdftest.Page{Lines: []string{"cached"}})
	cache := newMemCache()
	r := NewReader(WithCache(cache))
	r.ReadPdfContents(context.Background(), model.LinkedFile{Link: "a.pdf"}, path)
	require.Equal(t, 1, cache.puts)

	// When forgetting the file and reading it again
	r.Forget(context.Background(), path)
	r.ReadPdfContents(context.Background(), model.LinkedFile{Link: "a.pdf"}, path)

	// Then it was parsed and stored again
	assert.Equal(t, 2, cache.puts)
}

func TestDocuments_FailedExtraction(t *testing.T) {
	docs := Documents("x.pdf", Extraction{Failed: true, Pages: []Page{{Number: 1, Content: "ignored"}}}, 0, false)

	require.Len(t, docs, 1)
	assert.False(t, docs[0].Has(schema.FileContent))
	assert.False(t, docs[0].Has(schema.FileModified))
}
