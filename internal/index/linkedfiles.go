package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/pdf"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/store"
	"github.com/Aman-CERP/amanbib/pkg/indexer"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// LinkedFilesConfig configures a LinkedFilesIndexer.
type LinkedFilesConfig struct {
	Store    *store.Store
	Source   indexer.EntrySource
	Reader   *pdf.Reader
	Resolver model.FileResolver
	// Workers bounds parallel extraction. Defaults to runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
}

// LinkedFilesIndexer writes one document per page of every linked PDF.
// A file is identified by its link; entries linking the same file share
// its page documents, which are removed once no indexed entry links it.
type LinkedFilesIndexer struct {
	store     *store.Store
	source    indexer.EntrySource
	reader    *pdf.Reader
	resolver  model.FileResolver
	fileField string
	workers   int
	logger    *slog.Logger
	searchers *store.SearcherManager

	mu    sync.Mutex
	refs  map[string]map[string]struct{} // link -> entry IDs
	paths map[string]string              // link -> resolved path
}

var _ indexer.Indexer = (*LinkedFilesIndexer)(nil)

// NewLinkedFilesIndexer creates the page document indexer.
func NewLinkedFilesIndexer(cfg LinkedFilesConfig) *LinkedFilesIndexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	reader := cfg.Reader
	if reader == nil {
		reader = pdf.NewReader(pdf.WithLogger(logger))
	}
	return &LinkedFilesIndexer{
		store:     cfg.Store,
		source:    cfg.Source,
		reader:    reader,
		resolver:  cfg.Resolver,
		fileField: cfg.Store.Registry().FileField(),
		workers:   workers,
		logger:    logger,
		searchers: cfg.Store.NewSearcherManager(),
		refs:      make(map[string]map[string]struct{}),
		paths:     make(map[string]string),
	}
}

// fileWork is one linked file scheduled for extraction.
type fileWork struct {
	file model.LinkedFile
	path string
	out  chan []*schema.Document
}

// pdfLinks returns the local PDF links of e.
func (x *LinkedFilesIndexer) pdfLinks(e *model.Entry) []model.LinkedFile {
	return pdf.LocalPDFs(e, x.fileField)
}

// AddToIndex implements indexer.Indexer. Files whose indexed modification
// time matches the file on disk are skipped. Extraction runs in parallel;
// files are committed in entry order, one batch per file.
func (x *LinkedFilesIndexer) AddToIndex(b indexer.Batch, entries []*model.Entry) error {
	ctx := context.WithoutCancel(b.Context())

	indexed, err := x.indexedFiles(ctx)
	if err != nil {
		return err
	}

	var work []*fileWork
	seen := make(map[string]struct{})
	x.mu.Lock()
	for _, e := range entries {
		for _, f := range x.pdfLinks(e) {
			x.addRef(f.Link, e.ID)
			if _, dup := seen[f.Link]; dup {
				continue
			}
			seen[f.Link] = struct{}{}

			path, ok := x.resolver.Resolve(f)
			if !ok {
				x.logger.Debug("linked_file_not_found",
					slog.String("entry", e.ID),
					slog.String("link", f.Link))
				continue
			}
			x.paths[f.Link] = path
			if mod, ok := pdf.ModifiedTime(path); ok && indexed[f.Link] == strconv.FormatInt(mod, 10) {
				continue
			}
			work = append(work, &fileWork{file: f, path: path, out: make(chan []*schema.Document, 1)})
		}
	}
	x.mu.Unlock()

	total := len(work)
	if total == 0 {
		return nil
	}

	// wctx also stops extraction when the commit loop returns early.
	wctx, stop := context.WithCancel(b.Context())
	halted := func() bool { return wctx.Err() != nil || b.IsCanceled() }
	extracted := make(chan struct{})
	go func() {
		defer close(extracted)
		g := new(errgroup.Group)
		g.SetLimit(x.workers)
		for _, w := range work {
			if halted() {
				close(w.out)
				continue
			}
			g.Go(func() error {
				if halted() {
					close(w.out)
					return nil
				}
				w.out <- x.reader.ReadPdfContents(wctx, w.file, w.path)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		stop()
		<-extracted
	}()

	for i, w := range work {
		if b.IsCanceled() {
			break
		}
		docs, ok := <-w.out
		if !ok || b.IsCanceled() {
			break
		}
		if err := x.store.ReplaceByTerm(ctx, schema.FilePath, w.file.Link, docs...); err != nil {
			if fatal(err) {
				return err
			}
			x.logger.Warn("linked_file_index_failed",
				slog.String("link", w.file.Link),
				slog.String("error", err.Error()))
		}
		b.UpdateProgress(i+1, total, fmt.Sprintf("Indexed %d of %d linked files", i+1, total))
	}
	if b.IsCanceled() {
		x.logger.Info("linked_file_indexing_canceled", slog.Int("total", total))
	}
	return nil
}

// RemoveFromIndex implements indexer.Indexer. Page documents of a file
// are deleted once none of the remaining indexed entries links it.
func (x *LinkedFilesIndexer) RemoveFromIndex(ctx context.Context, entries []*model.Entry) error {
	x.mu.Lock()
	var orphans []string
	for _, e := range entries {
		candidates := make(map[string]struct{})
		for link, ids := range x.refs {
			if _, ok := ids[e.ID]; ok {
				candidates[link] = struct{}{}
			}
		}
		for _, f := range x.pdfLinks(e) {
			candidates[f.Link] = struct{}{}
		}
		for link := range candidates {
			if x.dropRef(link, e.ID) {
				orphans = append(orphans, link)
			}
		}
	}
	x.mu.Unlock()

	return x.dropFiles(ctx, orphans)
}

// RemoveFiles deletes the page documents of the given links regardless
// of which entries link them.
func (x *LinkedFilesIndexer) RemoveFiles(ctx context.Context, links ...string) error {
	x.mu.Lock()
	for _, l := range links {
		delete(x.refs, l)
	}
	x.mu.Unlock()
	return x.dropFiles(ctx, links)
}

// dropFiles deletes the page documents of links and their cached
// extractions.
func (x *LinkedFilesIndexer) dropFiles(ctx context.Context, links []string) error {
	if len(links) == 0 {
		return nil
	}
	n, err := x.store.DeleteByTerm(ctx, schema.FilePath, links...)
	if err != nil {
		return fmt.Errorf("remove linked files: %w", err)
	}

	x.mu.Lock()
	paths := make([]string, 0, len(links))
	for _, l := range links {
		path, ok := x.paths[l]
		if !ok {
			path, ok = x.resolver.Resolve(model.LinkedFile{Link: l})
		}
		if ok {
			paths = append(paths, path)
		}
		delete(x.paths, l)
	}
	x.mu.Unlock()
	for _, p := range paths {
		x.reader.Forget(ctx, p)
	}

	x.logger.Debug("linked_files_removed", slog.Int("files", len(links)), slog.Int("documents", n))
	return nil
}

// UpdateEntry implements indexer.Indexer. Files the entry no longer links
// lose their pages once no other entry links them. Files it still links
// keep their pages until the replacement commit, and unchanged files are
// not read again.
func (x *LinkedFilesIndexer) UpdateEntry(b indexer.Batch, e *model.Entry) error {
	keep := make(map[string]struct{})
	for _, f := range x.pdfLinks(e) {
		keep[f.Link] = struct{}{}
	}

	x.mu.Lock()
	var orphans []string
	for link, ids := range x.refs {
		if _, ok := ids[e.ID]; !ok {
			continue
		}
		if _, ok := keep[link]; ok {
			continue
		}
		if x.dropRef(link, e.ID) {
			orphans = append(orphans, link)
		}
	}
	x.mu.Unlock()

	if err := x.dropFiles(context.WithoutCancel(b.Context()), orphans); err != nil {
		return err
	}
	return x.AddToIndex(b, []*model.Entry{e})
}

// RemoveAllFromIndex implements indexer.Indexer.
func (x *LinkedFilesIndexer) RemoveAllFromIndex(ctx context.Context) error {
	x.mu.Lock()
	x.refs = make(map[string]map[string]struct{})
	x.paths = make(map[string]string)
	x.mu.Unlock()

	n, err := x.store.DeleteByKind(ctx, schema.KindPage)
	if err != nil {
		return fmt.Errorf("remove all linked files: %w", err)
	}
	x.logger.Debug("linked_files_cleared", slog.Int("removed", n))
	return nil
}

// RebuildIndex implements indexer.Indexer.
func (x *LinkedFilesIndexer) RebuildIndex(b indexer.Batch) error {
	if err := x.RemoveAllFromIndex(b.Context()); err != nil {
		return err
	}
	return x.AddToIndex(b, x.source.Entries())
}

// UpdateOnStart drops page documents of files no longer linked or no
// longer on disk, then indexes new and modified files.
func (x *LinkedFilesIndexer) UpdateOnStart(b indexer.Batch) error {
	ctx := b.Context()
	entries := x.source.Entries()

	x.mu.Lock()
	x.refs = make(map[string]map[string]struct{})
	x.mu.Unlock()

	indexed, err := x.indexedFiles(ctx)
	if err != nil {
		return err
	}
	live := make(map[string]struct{})
	for _, e := range entries {
		for _, f := range x.pdfLinks(e) {
			if _, ok := x.resolver.Resolve(f); ok {
				live[f.Link] = struct{}{}
			}
		}
	}
	var stale []string
	for link := range indexed {
		if _, ok := live[link]; !ok {
			stale = append(stale, link)
		}
	}
	if err := x.RemoveFiles(ctx, stale...); err != nil {
		return err
	}
	if len(stale) > 0 {
		x.logger.Info("stale_linked_files_removed", slog.Int("files", len(stale)))
	}
	return x.AddToIndex(b, entries)
}

// indexedFiles maps every indexed link to its stored modification time.
func (x *LinkedFilesIndexer) indexedFiles(ctx context.Context) (map[string]string, error) {
	q := bleve.NewConjunctionQuery(
		store.TermQuery(schema.DocKind, schema.KindPage),
		store.TermQuery(schema.FilePageNumber, "1"),
	)
	vals, err := x.store.StoredValues(ctx, q, schema.FilePath, schema.FileModified)
	if err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	out := make(map[string]string, len(vals))
	for _, fields := range vals {
		paths := fields[schema.FilePath]
		if len(paths) == 0 {
			continue
		}
		var mod string
		if m := fields[schema.FileModified]; len(m) > 0 {
			mod = m[0]
		}
		out[paths[0]] = mod
	}
	return out, nil
}

// LinkedBy returns the IDs of the entries known to link link.
func (x *LinkedFilesIndexer) LinkedBy(link string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]string, 0, len(x.refs[link]))
	for id := range x.refs[link] {
		ids = append(ids, id)
	}
	return ids
}

// addRef records that entryID links link. Callers hold mu.
func (x *LinkedFilesIndexer) addRef(link, entryID string) {
	ids, ok := x.refs[link]
	if !ok {
		ids = make(map[string]struct{})
		x.refs[link] = ids
	}
	ids[entryID] = struct{}{}
}

// dropRef forgets that entryID links link and reports whether no entry
// links it anymore. Callers hold mu.
func (x *LinkedFilesIndexer) dropRef(link, entryID string) bool {
	ids := x.refs[link]
	delete(ids, entryID)
	if len(ids) > 0 {
		return false
	}
	delete(x.refs, link)
	return true
}

// AcquireSearchHandle implements indexer.Indexer.
func (x *LinkedFilesIndexer) AcquireSearchHandle() (searcher.Handle, error) {
	return x.searchers.Acquire()
}

// Close implements indexer.Indexer.
func (x *LinkedFilesIndexer) Close() error {
	return x.searchers.Release()
}
