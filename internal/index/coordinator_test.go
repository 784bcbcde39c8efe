package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanbib/internal/async"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/pkg/indexer"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

func newCoordinator(t *testing.T, source indexer.EntrySource, sink async.Sink, indexers ...indexer.Indexer) *Coordinator {
	t.Helper()
	exec := async.NewExecutor(4)
	t.Cleanup(exec.Close)
	return NewCoordinator(CoordinatorConfig{
		Library:  "test.yaml",
		Indexers: indexers,
		Source:   source,
		Executor: exec,
		Sink:     sink,
	})
}

func waitTask(t *testing.T, task *async.Task) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return task.Wait(ctx)
}

func TestCoordinator_AddReturnsTask(t *testing.T) {
	// Given a coordinator over the header indexer
	st := newStore(t)
	entries := []*model.Entry{
		entry("a", map[string]string{"title": "A"}),
		entry("b", map[string]string{"title": "B"}),
	}
	c := newCoordinator(t, sliceSource(entries), nil,
		NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource(entries)}))

	// When adding entries
	task, err := c.AddToIndex(entries)
	require.NoError(t, err)

	// Then the task completes with progress and the entries are indexed
	require.NoError(t, waitTask(t, task))
	assert.Equal(t, async.StateCompleted, task.State())
	assert.Equal(t, 2, task.Progress().Done)
	assert.EqualValues(t, 2, docCount(t, st))
}

func TestCoordinator_ConcurrentUpdatesNeverLoseOrDuplicate(t *testing.T) {
	// Given an indexed entry
	st := newStore(t)
	e := entry("a", map[string]string{"title": "v0"})
	c := newCoordinator(t, sliceSource{e}, nil,
		NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}}))
	task, err := c.AddToIndex([]*model.Entry{e})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))

	// When many goroutines update it concurrently
	var wg sync.WaitGroup
	var mu sync.Mutex
	var tasks []*async.Task
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := c.UpdateEntry(entry("a", map[string]string{"title": fmt.Sprintf("v%d", i)}))
			assert.NoError(t, err)
			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
		}()
	}
	wg.Wait()
	for _, task := range tasks {
		require.NoError(t, waitTask(t, task))
	}

	// Then exactly one header document exists for the entry
	assert.Len(t, ids(t, st, "id:a"), 1)
	assert.EqualValues(t, 1, docCount(t, st))
}

func TestCoordinator_UpdatedEntryStaysSearchable(t *testing.T) {
	// Given an indexed entry and a reader polling for it
	st := newStore(t)
	e := entry("a", map[string]string{"title": "v0"})
	c := newCoordinator(t, sliceSource{e}, nil,
		NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{e}}))
	task, err := c.AddToIndex([]*model.Entry{e})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))

	stop := make(chan struct{})
	var (
		missed, duplicated int
		polls              sync.WaitGroup
	)
	polls.Add(1)
	go func() {
		defer polls.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap, err := st.Reader()
			if err != nil {
				return
			}
			res, err := searcher.SearchString(context.Background(), snap, "id:a", 0)
			_ = snap.Release()
			if err != nil {
				continue
			}
			switch {
			case len(res.Hits) == 0:
				missed++
			case len(res.Hits) > 1:
				duplicated++
			}
		}
	}()

	// When the entry is updated repeatedly
	var last *async.Task
	for i := 1; i <= 50; i++ {
		last, err = c.UpdateEntry(entry("a", map[string]string{"title": fmt.Sprintf("v%d", i)}))
		require.NoError(t, err)
	}
	require.NoError(t, waitTask(t, last))
	close(stop)
	polls.Wait()

	// Then every reader saw exactly one version of it
	assert.Zero(t, missed)
	assert.Zero(t, duplicated)
	assert.Equal(t, []string{"entry:a"}, ids(t, st, "title:v50"))
}

func TestCoordinator_RemoveIsAppliedBeforeLaterAdd(t *testing.T) {
	// Given a slow add in flight
	st := newStore(t)
	slow := &slowIndexer{Indexer: NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{}}), delay: 20 * time.Millisecond}
	c := newCoordinator(t, sliceSource{}, nil, slow)
	e := entry("a", map[string]string{"title": "T"})
	first, err := c.AddToIndex([]*model.Entry{e})
	require.NoError(t, err)

	// When a removal and a re-add are scheduled behind it
	require.NoError(t, c.RemoveFromIndex(context.Background(), []*model.Entry{e}))
	assert.Equal(t, async.StateCompleted, first.State())
	assert.Zero(t, docCount(t, st))

	second, err := c.AddToIndex([]*model.Entry{e})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, second))

	// Then the final state holds the entry once
	assert.EqualValues(t, 1, docCount(t, st))
}

func TestCoordinator_Rebuild(t *testing.T) {
	// Given an index holding a document no longer in the library
	st := newStore(t)
	entries := sliceSource{
		entry("a", map[string]string{"title": "A", "keywords": "x"}),
		entry("b", map[string]string{"title": "B"}),
	}
	rec := &recorder{}
	reg := st.Registry()
	exec := async.NewExecutor(2)
	t.Cleanup(exec.Close)
	c := NewCoordinator(CoordinatorConfig{
		Library:  "lib",
		Indexers: []indexer.Indexer{NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: entries})},
		Source:   entries,
		Registry: reg,
		Executor: exec,
		Sink:     rec,
	})
	stale := entry("stale", map[string]string{"obsolete": "yes"})
	task, err := c.AddToIndex([]*model.Entry{stale})
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))
	require.True(t, reg.Known("obsolete"))

	// When rebuilding twice
	task, err = c.Rebuild(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))
	first := docCount(t, st)
	task, err = c.Rebuild(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitTask(t, task))

	// Then the index mirrors the library and status was reported in order
	assert.EqualValues(t, 2, first)
	assert.Equal(t, first, docCount(t, st))
	assert.Empty(t, ids(t, st, "id:stale"))
	assert.False(t, reg.Known("obsolete"))
	assert.Equal(t, []async.EventKind{
		async.EventRebuildRequested, async.EventRebuildInProgress, async.EventRebuildCompleted,
		async.EventRebuildRequested, async.EventRebuildInProgress, async.EventRebuildCompleted,
	}, rec.statusKinds())
}

func TestCoordinator_RebuildRunsOneAtATime(t *testing.T) {
	// Given a rebuild that takes a while
	st := newStore(t)
	entries := sliceSource{entry("a", map[string]string{"title": "A"})}
	slow := &slowIndexer{Indexer: NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: entries}), delay: 50 * time.Millisecond}
	c := newCoordinator(t, entries, nil, slow)
	first, err := c.Rebuild(context.Background())
	require.NoError(t, err)

	// When a second rebuild is requested before it finishes
	_, err = c.Rebuild(context.Background())

	// Then it is refused until the first one is done
	assert.ErrorIs(t, err, ErrRebuildRunning)
	assert.True(t, c.Rebuilding())
	require.NoError(t, waitTask(t, first))
	assert.False(t, c.Rebuilding())

	next, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	require.NoError(t, waitTask(t, next))
	assert.EqualValues(t, 1, docCount(t, st))
}

func TestCoordinator_FailingIndexerReported(t *testing.T) {
	// Given one failing and one working indexer
	st := newStore(t)
	rec := &recorder{}
	good := NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource{}})
	c := newCoordinator(t, sliceSource{}, rec, failingIndexer{Indexer: good}, good)

	// When adding an entry
	task, err := c.AddToIndex([]*model.Entry{entry("a", map[string]string{"title": "T"})})
	require.NoError(t, err)

	// Then the task fails, the working indexer still ran and a summary is posted
	assert.Error(t, waitTask(t, task))
	assert.Equal(t, async.StateFailed, task.State())
	assert.EqualValues(t, 1, docCount(t, st))
	assert.Contains(t, rec.statusKinds(), async.EventIndexFailed)
}

func TestCoordinator_CancelAdd(t *testing.T) {
	// Given a long add batch
	st := newStore(t)
	var entries []*model.Entry
	for i := 0; i < 50; i++ {
		entries = append(entries, entry(fmt.Sprintf("e%d", i), map[string]string{"title": "x"}))
	}
	slow := &slowIndexer{Indexer: NewBibFieldsIndexer(BibFieldsConfig{Store: st, Source: sliceSource(entries)}), perEntry: true, delay: time.Millisecond}
	c := newCoordinator(t, sliceSource(entries), nil, slow)

	// When canceling it after it started
	task, err := c.AddToIndex(entries)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return task.Progress().Done >= 5 }, 5*time.Second, time.Millisecond)
	task.Cancel()

	// Then it ends canceled, keeping what was added
	assert.ErrorIs(t, waitTask(t, task), context.Canceled)
	assert.Equal(t, async.StateCanceled, task.State())
	n := docCount(t, st)
	assert.Greater(t, n, uint64(0))
	assert.Less(t, n, uint64(50))
}

func TestCoordinator_Closed(t *testing.T) {
	c := newCoordinator(t, sliceSource{}, nil)
	c.Close()

	_, err := c.AddToIndex(nil)
	assert.ErrorIs(t, err, ErrCoordinatorClosed)
	assert.ErrorIs(t, c.RemoveAllFromIndex(context.Background()), ErrCoordinatorClosed)
}

// slowIndexer delays adds, either once per batch or once per entry.
type slowIndexer struct {
	indexer.Indexer
	delay    time.Duration
	perEntry bool
}

func (s *slowIndexer) AddToIndex(b indexer.Batch, entries []*model.Entry) error {
	if !s.perEntry {
		time.Sleep(s.delay)
		return s.Indexer.AddToIndex(b, entries)
	}
	for i, e := range entries {
		if b.IsCanceled() {
			return nil
		}
		time.Sleep(s.delay)
		if err := s.Indexer.AddToIndex(silentBatch{b}, []*model.Entry{e}); err != nil {
			return err
		}
		b.UpdateProgress(i+1, len(entries), "slow")
	}
	return nil
}

// silentBatch hides progress from the wrapped batch.
type silentBatch struct{ indexer.Batch }

func (silentBatch) UpdateProgress(int, int, string) {}

type failingIndexer struct{ indexer.Indexer }

func (failingIndexer) AddToIndex(indexer.Batch, []*model.Entry) error {
	return errors.New("disk full")
}
