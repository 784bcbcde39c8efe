// Package store owns the bleve index of one library: a single serialized
// writer, a cross-process writer lock for on-disk indexes, and point-in-time
// snapshots handed to readers.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/document"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/schema"
)

// schemaVersionKey is the bleve internal key holding the schema token.
var schemaVersionKey = []byte("amanbib_schema_version")

// Options configures Open.
type Options struct {
	// Path is the index directory. Empty creates an in-memory index.
	Path string
	// SchemaVersion overrides schema.Version.
	SchemaVersion string
	// Registry decides field treatments. Required.
	Registry *schema.Registry
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// LockRetry controls waiting for another process's writer lock.
	// Nil uses errors.DefaultRetryConfig.
	LockRetry *amerrors.RetryConfig
	// CloseTimeout bounds how long Close waits for open snapshots to be
	// released before closing them itself. Defaults to DefaultCloseTimeout.
	CloseTimeout time.Duration
}

// DefaultCloseTimeout is the default Options.CloseTimeout.
const DefaultCloseTimeout = 5 * time.Second

// Store is the index of one library.
type Store struct {
	path     string
	registry *schema.Registry
	mapping  *mapping.IndexMappingImpl
	keyword  analysis.Analyzer
	text     analysis.Analyzer
	lock     *WriterLock
	logger   *slog.Logger

	closeTimeout time.Duration

	fresh      bool
	generation atomic.Uint64

	// writeMu serializes every mutation, which makes delete-by-term
	// (search then delete) atomic with respect to other writes.
	writeMu sync.Mutex

	mu        sync.RWMutex
	index     bleve.Index
	closed    bool
	snapshots map[*Snapshot]struct{}
	// drained is closed by the release of the last snapshot once Close
	// is waiting.
	drained chan struct{}
}

// Open opens or creates the index described by opts. An on-disk index
// whose stored schema token differs from the running one is wiped and
// recreated; NeedsRebuild then reports true.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Registry == nil {
		return nil, amerrors.ValidationError("store requires a field registry", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	closeTimeout := opts.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = DefaultCloseTimeout
	}
	version := opts.SchemaVersion
	if version == "" {
		version = schema.Version
	}

	m := schema.BuildIndexMapping(opts.Registry)
	s := &Store{
		path:      opts.Path,
		registry:  opts.Registry,
		mapping:   m,
		keyword:   m.AnalyzerNamed(schema.KeywordAnalyzer),
		text:      m.AnalyzerNamed(schema.TextAnalyzer),
		logger:    logger,
		snapshots: make(map[*Snapshot]struct{}),

		closeTimeout: closeTimeout,
	}
	if s.keyword == nil || s.text == nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "index analyzers are not registered", nil)
	}

	token := schemaToken(version, opts.Registry)
	if opts.Path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, amerrors.IndexError("failed to create in-memory index", err)
		}
		if err := idx.SetInternal(schemaVersionKey, []byte(token)); err != nil {
			_ = idx.Close()
			return nil, amerrors.IndexError("failed to store schema version", err)
		}
		s.index = idx
		s.fresh = true
		return s, nil
	}

	s.lock = NewWriterLock(opts.Path)
	retry := amerrors.DefaultRetryConfig()
	if opts.LockRetry != nil {
		retry = *opts.LockRetry
	}
	if err := amerrors.Retry(ctx, retry, s.lock.TryLock); err != nil {
		return nil, err
	}

	idx, fresh, err := openOnDisk(opts.Path, m, token, logger)
	if err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	s.index = idx
	s.fresh = fresh

	logger.Debug("index_opened",
		slog.String("path", opts.Path),
		slog.Bool("fresh", fresh))
	return s, nil
}

// schemaToken combines the version with the keyword field set, so that a
// change to which fields are exact-match also forces a rebuild.
func schemaToken(version string, reg *schema.Registry) string {
	return version + ";" + strings.Join(reg.KeywordFields(), ",")
}

func openOnDisk(path string, m *mapping.IndexMappingImpl, token string, logger *slog.Logger) (bleve.Index, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, amerrors.New(amerrors.ErrCodeFilePermission,
			fmt.Sprintf("failed to create directory %s", filepath.Dir(path)), err)
	}

	if err := validateIndexIntegrity(path); err != nil {
		logger.Warn("index_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, false, amerrors.New(amerrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index corrupted at %s and cannot be removed", path), rmErr)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return createOnDisk(path, m, token)
	case isCorruptionError(err):
		logger.Warn("index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, false, amerrors.New(amerrors.ErrCodeCorruptIndex, "index corrupted and cannot be cleared", rmErr)
		}
		return createOnDisk(path, m, token)
	case err != nil:
		return nil, false, amerrors.New(amerrors.ErrCodeCorruptIndex, fmt.Sprintf("failed to open index %s", path), err)
	}

	stored, err := idx.GetInternal(schemaVersionKey)
	if err == nil && string(stored) == token {
		return idx, false, nil
	}

	logger.Info("index_schema_mismatch",
		slog.String("path", path),
		slog.String("stored", string(stored)),
		slog.String("current", token))
	_ = idx.Close()
	if err := os.RemoveAll(path); err != nil {
		return nil, false, amerrors.New(amerrors.ErrCodeSchemaMismatch, "outdated index cannot be removed", err)
	}
	return createOnDisk(path, m, token)
}

func createOnDisk(path string, m *mapping.IndexMappingImpl, token string) (bleve.Index, bool, error) {
	idx, err := bleve.New(path, m)
	if err != nil {
		return nil, false, amerrors.IndexError(fmt.Sprintf("failed to create index %s", path), err)
	}
	if err := idx.SetInternal(schemaVersionKey, []byte(token)); err != nil {
		_ = idx.Close()
		return nil, false, amerrors.IndexError("failed to store schema version", err)
	}
	return idx, true, nil
}

// NeedsRebuild reports whether the index was created empty by Open,
// either because none existed or because its schema was outdated.
func (s *Store) NeedsRebuild() bool { return s.fresh }

// Path returns the index directory, or "" for an in-memory index.
func (s *Store) Path() string { return s.path }

// Registry returns the field registry.
func (s *Store) Registry() *schema.Registry { return s.registry }

// Generation counts committed writes.
func (s *Store) Generation() uint64 { return s.generation.Load() }

// DocCount returns the number of documents currently committed.
func (s *Store) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed()
	}
	return s.index.DocCount()
}

// Index commits docs as one batch. Documents replace any document with
// the same ID.
func (s *Store) Index(ctx context.Context, docs ...*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for _, d := range docs {
		if err := batch.IndexAdvanced(s.toBleve(d)); err != nil {
			return amerrors.IndexError(fmt.Sprintf("failed to index document %s", d.ID), err)
		}
	}
	return s.commit(batch)
}

// ReplaceByTerm swaps every document whose keyword field equals value for
// docs in one batch, so readers see either the old set or the new one.
func (s *Store) ReplaceByTerm(ctx context.Context, field, value string, docs ...*schema.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	hits, err := s.search(ctx, TermQuery(field, value))
	if err != nil {
		return err
	}
	batch := s.index.NewBatch()
	for _, h := range hits {
		batch.Delete(h.ID)
	}
	for _, d := range docs {
		if err := batch.IndexAdvanced(s.toBleve(d)); err != nil {
			return amerrors.IndexError(fmt.Sprintf("failed to index document %s", d.ID), err)
		}
	}
	return s.commit(batch)
}

// Delete removes documents by ID.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.commit(batch)
}

// DeleteByTerm removes every document whose keyword field equals one of
// values and returns how many were removed.
func (s *Store) DeleteByTerm(ctx context.Context, field string, values ...string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	return s.deleteMatching(ctx, termsQuery(field, values))
}

// DeleteByKind removes every document owned by one indexer.
func (s *Store) DeleteByKind(ctx context.Context, kind string) (int, error) {
	return s.DeleteByTerm(ctx, schema.DocKind, kind)
}

// DeleteAll removes every document.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	return s.deleteMatching(ctx, bleve.NewMatchAllQuery())
}

func (s *Store) deleteMatching(ctx context.Context, q query.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	hits, err := s.search(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(hits) == 0 {
		return 0, nil
	}

	batch := s.index.NewBatch()
	for _, h := range hits {
		batch.Delete(h.ID)
	}
	if err := s.commit(batch); err != nil {
		return 0, err
	}
	return len(hits), nil
}

// StoredValues returns the requested stored fields of every document
// matching q against the latest committed state.
func (s *Store) StoredValues(ctx context.Context, q query.Query, fields ...string) (map[string]map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	hits, err := s.search(ctx, q, fields...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string][]string, len(hits))
	for _, h := range hits {
		vals := make(map[string][]string, len(h.Fields))
		for name, v := range h.Fields {
			vals[name] = toStrings(v)
		}
		out[h.ID] = vals
	}
	return out, nil
}

// storedHit is an ID with the stored fields bleve returned for it.
type storedHit struct {
	ID     string
	Fields map[string]any
}

// search returns every document matching q. Callers hold writeMu or mu.
func (s *Store) search(ctx context.Context, q query.Query, fields ...string) ([]storedHit, error) {
	count, err := s.index.DocCount()
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "failed to count documents", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	req.Fields = fields
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "search failed", err)
	}

	out := make([]storedHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, storedHit{ID: h.ID, Fields: h.Fields})
	}
	return out, nil
}

// commit applies a batch. Callers hold writeMu.
func (s *Store) commit(batch *bleve.Batch) error {
	if batch.Size() == 0 {
		return nil
	}
	if err := s.index.Batch(batch); err != nil {
		return amerrors.IndexError("failed to commit batch", err)
	}
	s.generation.Add(1)
	return nil
}

// toBleve converts a document. Repeated field names get increasing array
// positions so every value is stored and indexed separately.
func (s *Store) toBleve(d *schema.Document) *document.Document {
	doc := document.NewDocument(d.ID)
	positions := make(map[string]uint64, len(d.Fields))
	for _, f := range d.Fields {
		var (
			opts     index.FieldIndexingOptions
			analyzer analysis.Analyzer
		)
		switch f.Treatment {
		case schema.Keyword:
			opts = index.IndexField | index.StoreField | index.IncludeTermVectors | index.DocValues
			analyzer = s.keyword
		case schema.StoredOnly:
			opts = index.StoreField
			analyzer = s.keyword
		default:
			opts = index.IndexField | index.StoreField | index.IncludeTermVectors
			analyzer = s.text
		}
		pos := positions[f.Name]
		positions[f.Name] = pos + 1
		doc.AddField(document.NewTextFieldCustom(f.Name, []uint64{pos}, []byte(f.Value), opts, analyzer))
	}
	doc.AddField(document.NewCompositeField(schema.AllField, true, nil,
		[]string{schema.DocKind, schema.FileModified, schema.FilePageNumber}))
	return doc
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed()
	}
	return nil
}

// Close rejects new snapshots and writes, then waits up to the close
// timeout for open snapshots to be released. Snapshots still open after
// that are released here, and later calls on them fail. It then closes
// the index and releases the writer lock. Every step runs even if an
// earlier one fails.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var drained chan struct{}
	if len(s.snapshots) > 0 {
		drained = make(chan struct{})
		s.drained = drained
	}
	s.mu.Unlock()

	if drained != nil {
		timer := time.NewTimer(s.closeTimeout)
		select {
		case <-drained:
		case <-timer.C:
			s.mu.RLock()
			n := len(s.snapshots)
			s.mu.RUnlock()
			s.logger.Warn("snapshots_still_open",
				slog.String("path", s.path),
				slog.Int("count", n),
				slog.Duration("waited", s.closeTimeout))
		}
		timer.Stop()
	}

	s.mu.Lock()
	snaps := s.snapshots
	s.snapshots = nil
	s.drained = nil
	s.mu.Unlock()

	var errs []error
	for snap := range snaps {
		if err := snap.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.index.Close(); err != nil {
		s.logger.Warn("index_close_failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func termsQuery(field string, values []string) query.Query {
	if len(values) == 1 {
		tq := bleve.NewTermQuery(values[0])
		tq.SetField(field)
		return tq
	}
	qs := make([]query.Query, 0, len(values))
	for _, v := range values {
		tq := bleve.NewTermQuery(v)
		tq.SetField(field)
		qs = append(qs, tq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// TermQuery matches documents whose keyword field equals value.
func TermQuery(field, value string) query.Query {
	return termsQuery(field, []string{value})
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}

func errStoreClosed() error {
	return amerrors.New(amerrors.ErrCodeStoreClosed, "index is closed", nil)
}
