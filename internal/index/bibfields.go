package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/store"
	"github.com/Aman-CERP/amanbib/pkg/indexer"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// commitEvery bounds how many documents share one store batch.
const commitEvery = 64

// BibFieldsConfig configures a BibFieldsIndexer.
type BibFieldsConfig struct {
	Store  *store.Store
	Source indexer.EntrySource
	// KeywordSeparator splits keyword-list fields. Defaults to ",".
	KeywordSeparator string
	Logger           *slog.Logger
}

// BibFieldsIndexer writes one header document per entry.
type BibFieldsIndexer struct {
	store     *store.Store
	registry  *schema.Registry
	source    indexer.EntrySource
	separator string
	logger    *slog.Logger
	searchers *store.SearcherManager
}

var _ indexer.Indexer = (*BibFieldsIndexer)(nil)

// NewBibFieldsIndexer creates the header document indexer.
func NewBibFieldsIndexer(cfg BibFieldsConfig) *BibFieldsIndexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sep := cfg.KeywordSeparator
	if sep == "" {
		sep = ","
	}
	return &BibFieldsIndexer{
		store:     cfg.Store,
		registry:  cfg.Store.Registry(),
		source:    cfg.Source,
		separator: sep,
		logger:    logger,
		searchers: cfg.Store.NewSearcherManager(),
	}
}

// BuildEntryDocument maps e onto its header document and records every
// field name in reg. Keyword-list fields become one keyword value per
// token, the file field one keyword value per link, and everything else a
// single value with the field's treatment.
func BuildEntryDocument(reg *schema.Registry, e *model.Entry, separator string) *schema.Document {
	doc := schema.NewDocument(schema.EntryDocID(e.ID), schema.KindEntry)
	doc.Add(schema.EntryID, e.ID, schema.Keyword)
	if e.Type != "" {
		doc.Add(schema.EntryType, e.Type, schema.Keyword)
	}

	for _, name := range e.FieldNames() {
		if name == schema.EntryID || name == schema.EntryType || schema.IsInternal(name) {
			continue
		}
		value := e.Fields[name]
		t := reg.Observe(name)
		switch {
		case reg.IsFileField(name):
			for _, f := range model.ParseFileField(value) {
				doc.Add(name, f.Link, schema.Keyword)
			}
		case reg.IsKeywordList(name):
			for _, kw := range model.ParseKeywords(value, separator) {
				doc.Add(name, kw, schema.Keyword)
			}
		default:
			doc.Add(name, value, t)
		}
	}
	return doc
}

// AddToIndex implements indexer.Indexer.
func (x *BibFieldsIndexer) AddToIndex(b indexer.Batch, entries []*model.Entry) error {
	total := len(entries)
	if total == 0 {
		return nil
	}

	// Commits are not interrupted; cancellation only stops new documents.
	ctx := context.WithoutCancel(b.Context())
	pending := make([]*schema.Document, 0, min(total, commitEvery))
	for i, e := range entries {
		if b.IsCanceled() {
			x.logger.Info("entry_indexing_canceled",
				slog.Int("indexed", i),
				slog.Int("total", total))
			break
		}
		pending = append(pending, BuildEntryDocument(x.registry, e, x.separator))
		if len(pending) == commitEvery {
			if err := x.commit(ctx, pending); err != nil {
				return err
			}
			pending = pending[:0]
		}
		b.UpdateProgress(i+1, total, fmt.Sprintf("Indexed %d of %d entries", i+1, total))
	}
	return x.commit(ctx, pending)
}

// commit writes docs as one batch. If the batch fails, every document is
// retried on its own so one bad entry only skips itself.
func (x *BibFieldsIndexer) commit(ctx context.Context, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	err := x.store.Index(ctx, docs...)
	if err == nil || fatal(err) {
		return err
	}
	for _, d := range docs {
		if err := x.store.Index(ctx, d); err != nil {
			if fatal(err) {
				return err
			}
			x.logger.Warn("entry_index_failed",
				slog.String("doc", d.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// RemoveFromIndex implements indexer.Indexer.
func (x *BibFieldsIndexer) RemoveFromIndex(ctx context.Context, entries []*model.Entry) error {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	n, err := x.store.DeleteByTerm(ctx, schema.EntryID, ids...)
	if err != nil {
		return fmt.Errorf("remove entries: %w", err)
	}
	x.logger.Debug("entries_removed", slog.Int("requested", len(ids)), slog.Int("removed", n))
	return nil
}

// UpdateEntry implements indexer.Indexer. The old header document is
// deleted and the new one added in a single commit, so readers see either
// version of the entry and never neither.
func (x *BibFieldsIndexer) UpdateEntry(b indexer.Batch, e *model.Entry) error {
	doc := BuildEntryDocument(x.registry, e, x.separator)
	if err := x.store.ReplaceByTerm(context.WithoutCancel(b.Context()), schema.EntryID, e.ID, doc); err != nil {
		return fmt.Errorf("update entry %s: %w", e.ID, err)
	}
	b.UpdateProgress(1, 1, "Updated entry "+e.ID)
	return nil
}

// RemoveAllFromIndex implements indexer.Indexer.
func (x *BibFieldsIndexer) RemoveAllFromIndex(ctx context.Context) error {
	n, err := x.store.DeleteByKind(ctx, schema.KindEntry)
	if err != nil {
		return fmt.Errorf("remove all entries: %w", err)
	}
	x.logger.Debug("entries_cleared", slog.Int("removed", n))
	return nil
}

// RebuildIndex implements indexer.Indexer.
func (x *BibFieldsIndexer) RebuildIndex(b indexer.Batch) error {
	if err := x.RemoveAllFromIndex(b.Context()); err != nil {
		return err
	}
	return x.AddToIndex(b, x.source.Entries())
}

// UpdateOnStart brings a reopened index in line with the library without
// clearing it: every header document is rewritten in place, which also
// repopulates the field registry, and headers of entries no longer in the
// library are deleted.
func (x *BibFieldsIndexer) UpdateOnStart(b indexer.Batch) error {
	ctx := context.WithoutCancel(b.Context())
	entries := x.source.Entries()

	indexed, err := x.store.StoredValues(ctx, store.TermQuery(schema.DocKind, schema.KindEntry), schema.EntryID)
	if err != nil {
		return fmt.Errorf("list indexed entries: %w", err)
	}
	live := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		live[e.ID] = struct{}{}
	}
	var orphans []string
	for _, fields := range indexed {
		for _, id := range fields[schema.EntryID] {
			if _, ok := live[id]; !ok {
				orphans = append(orphans, id)
			}
		}
	}

	if err := x.AddToIndex(b, entries); err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}
	n, err := x.store.DeleteByTerm(ctx, schema.EntryID, orphans...)
	if err != nil {
		return fmt.Errorf("remove orphaned entries: %w", err)
	}
	x.logger.Info("orphaned_entries_removed", slog.Int("entries", n))
	return nil
}

// AcquireSearchHandle implements indexer.Indexer.
func (x *BibFieldsIndexer) AcquireSearchHandle() (searcher.Handle, error) {
	return x.searchers.Acquire()
}

// Close implements indexer.Indexer.
func (x *BibFieldsIndexer) Close() error {
	return x.searchers.Release()
}

// fatal reports whether err means the store cannot take writes at all.
func fatal(err error) bool {
	return amerrors.GetCode(err) == amerrors.ErrCodeStoreClosed ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
