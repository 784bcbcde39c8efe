package indexer

import (
	"context"

	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// Batch is the progress and cancellation channel of a running batch.
// *async.Task implements it.
type Batch interface {
	// Context is canceled when the batch is canceled.
	Context() context.Context
	// IsCanceled is checked between documents, never mid-document.
	IsCanceled() bool
	// UpdateProgress reports the running count after each document.
	UpdateProgress(done, total int, message string)
}

// Indexer maintains one kind of document in a library's index.
//
// Implementations must be safe for concurrent use. Batch methods never
// return per-document failures: those are logged and the document is
// skipped. A returned error means the batch could not proceed at all.
type Indexer interface {
	// AddToIndex indexes entries, checking b for cancellation between
	// documents. Canceling keeps what was already committed.
	AddToIndex(b Batch, entries []*model.Entry) error

	// RemoveFromIndex deletes the documents derived from entries. It
	// returns only after the deletion is committed.
	RemoveFromIndex(ctx context.Context, entries []*model.Entry) error

	// UpdateEntry replaces the documents of entry: remove, then add.
	UpdateEntry(b Batch, entry *model.Entry) error

	// RemoveAllFromIndex deletes every document this indexer owns.
	RemoveAllFromIndex(ctx context.Context) error

	// RebuildIndex clears this indexer's documents and re-adds every
	// entry currently in the library.
	RebuildIndex(b Batch) error

	// UpdateOnStart brings a persisted index in line with the library
	// after it was opened.
	UpdateOnStart(b Batch) error

	// AcquireSearchHandle releases the handle previously acquired through
	// this indexer and returns a snapshot of the latest committed state.
	AcquireSearchHandle() (searcher.Handle, error)

	// Close releases the held search handle. The store is owned by the
	// caller and stays open.
	Close() error
}

// EntrySource enumerates the entries of a library.
type EntrySource interface {
	Entries() []*model.Entry
}
