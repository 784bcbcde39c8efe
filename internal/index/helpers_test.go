package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanbib/internal/async"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/store"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// fakeBatch records progress and reports cancellation once cancelAfter
// updates were seen.
type fakeBatch struct {
	ctx         context.Context
	cancelAfter int
	canceled    bool
	// onProgress runs on every progress update.
	onProgress func()

	mu      sync.Mutex
	updates []async.Progress
}

func newBatch() *fakeBatch { return &fakeBatch{ctx: context.Background()} }

func (b *fakeBatch) Context() context.Context { return b.ctx }

func (b *fakeBatch) IsCanceled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canceled || (b.cancelAfter > 0 && len(b.updates) >= b.cancelAfter)
}

func (b *fakeBatch) UpdateProgress(done, total int, message string) {
	b.mu.Lock()
	b.updates = append(b.updates, async.Progress{Done: done, Total: total, Message: message})
	b.mu.Unlock()
	if b.onProgress != nil {
		b.onProgress()
	}
}

func (b *fakeBatch) progress() []async.Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]async.Progress(nil), b.updates...)
}

// sliceSource is a fixed entry list.
type sliceSource []*model.Entry

func (s sliceSource) Entries() []*model.Entry { return s }

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []async.Event
}

func (r *recorder) Post(ev async.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) statusKinds() []async.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []async.EventKind
	for _, ev := range r.events {
		if ev.IsStatus() {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{
		Registry: schema.NewRegistry([]string{"keywords", "groups"}, "file"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func entry(id string, fields map[string]string) *model.Entry {
	return model.NewEntry(id, "article", fields)
}

// ids runs qs against a fresh snapshot and returns the matching IDs.
func ids(t *testing.T, st *store.Store, qs string) []string {
	t.Helper()
	snap, err := st.Reader()
	require.NoError(t, err)
	defer snap.Release()

	res, err := searcher.SearchString(context.Background(), snap, qs, 0)
	require.NoError(t, err)
	out := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.ID)
	}
	return out
}

// stored returns the stored fields of one document.
func stored(t *testing.T, st *store.Store, id string) map[string][]string {
	t.Helper()
	snap, err := st.Reader()
	require.NoError(t, err)
	defer snap.Release()

	fields, err := snap.Document(id)
	require.NoError(t, err)
	return fields
}

func docCount(t *testing.T, st *store.Store) uint64 {
	t.Helper()
	n, err := st.DocCount()
	require.NoError(t, err)
	return n
}
