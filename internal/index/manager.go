package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/amanbib/internal/async"
	"github.com/Aman-CERP/amanbib/internal/config"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/pdf"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/store"
	"github.com/Aman-CERP/amanbib/pkg/indexer"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// Options configures NewManager.
type Options struct {
	Library *model.Library
	// Config defaults to config.NewConfig().
	Config *config.Config
	// Sink receives task progress and status events (optional).
	Sink   async.Sink
	Logger *slog.Logger
	// Reader overrides the PDF reader built from Config.
	Reader *pdf.Reader
}

// Manager wires the index of one library: the store, both indexers, the
// coordinator and the subscription to library changes.
type Manager struct {
	library     *model.Library
	config      *config.Config
	store       *store.Store
	registry    *schema.Registry
	cache       *store.ExtractCache
	bib         *BibFieldsIndexer
	files       *LinkedFilesIndexer
	indexers    []indexer.Indexer
	coordinator *Coordinator
	executor    *async.Executor
	status      *async.StatusTracker
	searchers   *store.SearcherManager
	logger      *slog.Logger
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

// NewManager opens the library's index and schedules bringing it up to
// date: a full rebuild when the index was freshly created, an incremental
// update otherwise.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Library == nil {
		return nil, errors.New("index manager requires a library")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lib := opts.Library
	status := async.NewStatusTracker()
	sink := async.MultiSink(status, opts.Sink)

	registry := schema.NewRegistry(cfg.Index.KeywordFields, cfg.Index.FileField)
	st, err := store.Open(ctx, store.Options{
		Path:          cfg.IndexPathFor(lib.Path()),
		SchemaVersion: cfg.Index.SchemaVersion,
		Registry:      registry,
		Logger:        logger,
	})
	if err != nil {
		sink.Post(async.StatusEvent(async.EventIndexFailed, lib.Name(), "Cannot open the fulltext search index", err))
		return nil, fmt.Errorf("open index: %w", err)
	}

	m := &Manager{
		library:   lib,
		config:    cfg,
		store:     st,
		registry:  registry,
		status:    status,
		searchers: st.NewSearcherManager(),
		logger:    logger,
		executor:  async.NewExecutor(2, async.WithSink(sink), async.WithLogger(logger)),
	}

	m.bib = NewBibFieldsIndexer(BibFieldsConfig{
		Store:            st,
		Source:           lib,
		KeywordSeparator: cfg.Index.KeywordSeparator,
		Logger:           logger,
	})
	m.indexers = []indexer.Indexer{m.bib}

	if cfg.Index.IndexPDFs {
		reader := opts.Reader
		if reader == nil {
			reader = m.newReader(lib.Path())
		}
		m.files = NewLinkedFilesIndexer(LinkedFilesConfig{
			Store:    st,
			Source:   lib,
			Reader:   reader,
			Resolver: model.FileResolver{BaseDir: lib.BaseDir(), Dirs: cfg.Index.FileDirectories},
			Workers:  cfg.Index.Workers,
			Logger:   logger,
		})
		m.indexers = append(m.indexers, m.files)
	}

	m.coordinator = NewCoordinator(CoordinatorConfig{
		Library:  lib.Name(),
		Indexers: m.indexers,
		Source:   lib,
		Registry: registry,
		Executor: m.executor,
		Sink:     sink,
		Logger:   logger,
	})
	m.unsubscribe = lib.Subscribe(m.onChange)

	if st.NeedsRebuild() {
		_, err = m.coordinator.Rebuild(ctx)
	} else {
		_, err = m.coordinator.UpdateOnStart()
	}
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	logger.Info("index_manager_started",
		slog.String("library", lib.Path()),
		slog.String("index", st.Path()),
		slog.Bool("rebuild", st.NeedsRebuild()),
		slog.Bool("pdfs", m.files != nil))
	return m, nil
}

// newReader builds the PDF reader, with the extraction cache when enabled.
// A cache that cannot be opened only costs speed.
func (m *Manager) newReader(libraryPath string) *pdf.Reader {
	opts := []pdf.Option{pdf.WithLogger(m.logger)}
	if path := m.config.CachePathFor(libraryPath); path != "" {
		cache, err := store.OpenExtractCache(path, m.config.Cache.MemoryEntries, m.logger)
		if err != nil {
			m.logger.Warn("extract_cache_unavailable",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			m.cache = cache
			opts = append(opts, pdf.WithCache(cache))
		}
	}
	return pdf.NewReader(opts...)
}

// onChange turns library changes into index operations.
func (m *Manager) onChange(c model.Change) {
	ctx := context.Background()
	var err error
	switch c.Kind {
	case model.ChangeAdded:
		_, err = m.coordinator.AddToIndex(c.Entries)
	case model.ChangeRemoved:
		err = m.coordinator.RemoveFromIndex(ctx, c.Entries)
	case model.ChangeModified:
		for _, e := range c.Entries {
			if _, uerr := m.coordinator.UpdateEntry(e); uerr != nil {
				err = errors.Join(err, uerr)
			}
		}
	}
	if err != nil && !errors.Is(err, ErrCoordinatorClosed) {
		m.logger.Warn("library_change_not_indexed",
			slog.String("change", c.Kind.String()),
			slog.Int("entries", len(c.Entries)),
			slog.String("error", err.Error()))
	}
}

// Wait blocks until every scheduled index operation has finished.
func (m *Manager) Wait(ctx context.Context) error {
	return m.coordinator.Wait(ctx)
}

// Handle returns a fresh search handle. It releases the handle previously
// returned by this method; handles obtained elsewhere stay valid.
func (m *Manager) Handle() (searcher.Handle, error) {
	return m.searchers.Acquire()
}

// Fields returns the bibliographic field names seen so far.
func (m *Manager) Fields() []string {
	return m.registry.Fields()
}

// Rebuild clears the index and schedules re-adding every entry. It fails
// with ErrRebuildRunning while an earlier rebuild is still running.
func (m *Manager) Rebuild(ctx context.Context) (*async.Task, error) {
	return m.coordinator.Rebuild(ctx)
}

// Registry returns the field schema of the index.
func (m *Manager) Registry() *schema.Registry { return m.registry }

// LinkedBy returns the IDs of indexed entries linking the file, or nil
// when linked files are not indexed.
func (m *Manager) LinkedBy(link string) []string {
	if m.files == nil {
		return nil
	}
	return m.files.LinkedBy(link)
}

// Store exposes the underlying index.
func (m *Manager) Store() *store.Store { return m.store }

// Library returns the indexed library.
func (m *Manager) Library() *model.Library { return m.library }

// Status summarizes the indexing state.
type Status struct {
	async.StatusSnapshot
	Library   string `json:"library"`
	IndexPath string `json:"index_path,omitempty"`
	Documents uint64 `json:"documents"`
	Entries   int    `json:"entries"`
	Fields    int    `json:"fields"`
	// Commits counts index writes since the index was opened.
	Commits uint64 `json:"commits"`
	// CachedFiles is the number of PDF extractions in the cache.
	CachedFiles int `json:"cached_files"`
}

// Status returns the current indexing state and index size.
func (m *Manager) Status() Status {
	count, err := m.store.DocCount()
	if err != nil {
		m.logger.Debug("doc_count_failed", slog.String("error", err.Error()))
	}
	cached, err := m.cache.Len(context.Background())
	if err != nil {
		m.logger.Debug("extract_cache_count_failed", slog.String("error", err.Error()))
	}
	return Status{
		StatusSnapshot: m.status.Snapshot(),
		Library:        m.library.Path(),
		IndexPath:      m.store.Path(),
		Documents:      count,
		Entries:        m.library.Len(),
		Fields:         len(m.registry.Fields()),
		Commits:        m.store.Generation(),
		CachedFiles:    cached,
	}
}

// Close stops listening to the library, cancels outstanding tasks and
// closes the index. Every step runs even if an earlier one fails.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.coordinator != nil {
		m.coordinator.Close()
	}
	m.executor.Close()

	var errs []error
	if err := m.searchers.Release(); err != nil {
		errs = append(errs, err)
	}
	for _, ix := range m.indexers {
		if err := ix.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
