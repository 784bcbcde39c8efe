package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// Snapshot is a point-in-time reader over the index. Writes committed
// after it was opened are invisible to it.
type Snapshot struct {
	store  *Store
	reader index.IndexReader

	once     sync.Once
	released atomic.Bool
	err      error
}

var _ searcher.Handle = (*Snapshot)(nil)

// Reader opens a snapshot of the latest committed state. The caller
// must Release it.
func (s *Store) Reader() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed()
	}

	adv, err := s.index.Advanced()
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "index reader unavailable", err)
	}
	r, err := adv.Reader()
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInternal, "failed to open index reader", err)
	}

	snap := &Snapshot{store: s, reader: r}
	s.snapshots[snap] = struct{}{}
	return snap, nil
}

func (s *Store) forget(snap *Snapshot) {
	s.mu.Lock()
	delete(s.snapshots, snap)
	if s.drained != nil && len(s.snapshots) == 0 {
		close(s.drained)
		s.drained = nil
	}
	s.mu.Unlock()
}

// Search implements searcher.Handle.
func (snap *Snapshot) Search(ctx context.Context, q query.Query, size int) (*searcher.Results, error) {
	if snap.released.Load() {
		return nil, amerrors.New(amerrors.ErrCodeStoreClosed, "search handle already released", nil)
	}
	if size <= 0 {
		count, err := snap.reader.DocCount()
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "failed to count documents", err)
		}
		size = max(int(count), 1)
	}

	srch, err := q.Searcher(ctx, snap.reader, snap.store.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "invalid query", err)
	}
	defer func() {
		if cerr := srch.Close(); cerr != nil {
			snap.store.logger.Debug("searcher_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	coll := collector.NewTopNCollector(size, 0, search.SortOrder{&search.SortScore{Desc: true}})
	if err := coll.Collect(ctx, srch, snap.reader); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "search failed", err)
	}

	matches := coll.Results()
	res := &searcher.Results{
		Hits:     make([]searcher.Hit, 0, len(matches)),
		Total:    coll.Total(),
		MaxScore: coll.MaxScore(),
	}
	for _, m := range matches {
		fields, err := snap.Document(m.ID)
		if err != nil {
			return nil, err
		}
		res.Hits = append(res.Hits, searcher.Hit{ID: m.ID, Score: m.Score, Fields: fields})
	}
	return res, nil
}

// Document returns the stored fields of id, or nil if the snapshot does
// not contain it.
func (snap *Snapshot) Document(id string) (map[string][]string, error) {
	doc, err := snap.reader.Document(id)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, fmt.Sprintf("failed to load document %s", id), err)
	}
	if doc == nil {
		return nil, nil
	}
	fields := make(map[string][]string)
	doc.VisitFields(func(f index.Field) {
		if f.Name() == "_id" {
			return
		}
		fields[f.Name()] = append(fields[f.Name()], string(f.Value()))
	})
	return fields, nil
}

// DocCount implements searcher.Handle.
func (snap *Snapshot) DocCount() (uint64, error) {
	if snap.released.Load() {
		return 0, amerrors.New(amerrors.ErrCodeStoreClosed, "search handle already released", nil)
	}
	return snap.reader.DocCount()
}

// Release implements searcher.Handle.
func (snap *Snapshot) Release() error {
	err := snap.release()
	snap.store.forget(snap)
	return err
}

func (snap *Snapshot) release() error {
	snap.once.Do(func() {
		snap.released.Store(true)
		snap.err = snap.reader.Close()
	})
	return snap.err
}

// SearcherManager hands out snapshots to one caller. Each Acquire releases
// the snapshot previously acquired through the same manager, refreshes,
// and opens a new one. Snapshots held through other managers stay valid.
type SearcherManager struct {
	store *Store

	mu   sync.Mutex
	held *Snapshot
}

// NewSearcherManager creates a manager for one caller.
func (s *Store) NewSearcherManager() *SearcherManager {
	return &SearcherManager{store: s}
}

// Acquire returns a snapshot of the latest committed state.
func (m *SearcherManager) Acquire() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held != nil {
		if err := m.held.Release(); err != nil {
			m.store.logger.Debug("snapshot_release_failed", slog.String("error", err.Error()))
		}
		m.held = nil
	}

	snap, err := m.store.Reader()
	if err != nil {
		return nil, err
	}
	m.held = snap
	return snap, nil
}

// Release frees the snapshot currently held by the manager.
func (m *SearcherManager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		return nil
	}
	err := m.held.Release()
	m.held = nil
	return err
}
