package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/amanbib/internal/async"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/pkg/indexer"
)

var (
	// ErrCoordinatorClosed is returned by operations after Close.
	ErrCoordinatorClosed = errors.New("index coordinator closed")

	// ErrRebuildRunning is returned by Rebuild while another rebuild has
	// not finished.
	ErrRebuildRunning = errors.New("index rebuild already running")
)

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Library names the library in status events.
	Library string

	// Indexers are run in order by every operation.
	Indexers []indexer.Indexer

	// Source supplies the entries re-added by a rebuild.
	Source indexer.EntrySource

	// Registry is reset before a rebuild re-adds every entry (optional).
	Registry *schema.Registry

	// Executor runs the tasks. Owned by the caller.
	Executor *async.Executor

	// Sink receives status events (optional).
	Sink async.Sink

	Logger *slog.Logger
}

// Coordinator schedules index writes. Every write runs as a task on a
// single FIFO lane: a task starts only after the previously scheduled one
// has finished, so a removal scheduled before an add is always applied
// first. Removals are awaited by the caller; adds return their task.
type Coordinator struct {
	config CoordinatorConfig
	sink   async.Sink
	logger *slog.Logger

	rebuilding atomic.Bool

	mu     sync.Mutex
	last   *async.Task
	closed bool
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := config.Sink
	if sink == nil {
		sink = async.Discard
	}
	return &Coordinator{config: config, sink: sink, logger: logger}
}

// schedule appends a task to the write lane.
func (c *Coordinator) schedule(title string, fn async.Func) (*async.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCoordinatorClosed
	}
	var opts []async.SubmitOption
	if c.last != nil {
		opts = append(opts, async.After(c.last))
	}
	t := c.config.Executor.Submit(title, fn, opts...)
	c.last = t
	return t, nil
}

// each runs fn for every indexer. A failing indexer does not stop the
// others; the failures are joined.
func (c *Coordinator) each(op string, fn func(indexer.Indexer) error) error {
	var errs []error
	for _, ix := range c.config.Indexers {
		if err := fn(ix); err != nil {
			c.logger.Warn("index_operation_failed",
				slog.String("operation", op),
				slog.String("library", c.config.Library),
				slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.sink.Post(async.StatusEvent(async.EventIndexFailed, c.config.Library,
			fmt.Sprintf("%s failed", op), err))
		return err
	}
	return nil
}

// AddToIndex schedules entries for indexing and returns immediately.
func (c *Coordinator) AddToIndex(entries []*model.Entry) (*async.Task, error) {
	return c.schedule(fmt.Sprintf("Adding %d entries to index", len(entries)), func(t *async.Task) error {
		return c.each("add", func(ix indexer.Indexer) error {
			if t.IsCanceled() {
				return nil
			}
			return ix.AddToIndex(t, entries)
		})
	})
}

// RemoveFromIndex removes the documents of entries and waits until the
// removal is committed.
func (c *Coordinator) RemoveFromIndex(ctx context.Context, entries []*model.Entry) error {
	t, err := c.schedule(fmt.Sprintf("Removing %d entries from index", len(entries)), func(t *async.Task) error {
		return c.each("remove", func(ix indexer.Indexer) error {
			return ix.RemoveFromIndex(context.WithoutCancel(t.Context()), entries)
		})
	})
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// UpdateEntry schedules replacing the documents of e as one task on the
// write lane and returns immediately.
func (c *Coordinator) UpdateEntry(e *model.Entry) (*async.Task, error) {
	return c.schedule("Updating entry "+e.ID, func(t *async.Task) error {
		return c.each("update", func(ix indexer.Indexer) error {
			return ix.UpdateEntry(t, e)
		})
	})
}

// RemoveAllFromIndex clears every indexer and waits for it.
func (c *Coordinator) RemoveAllFromIndex(ctx context.Context) error {
	t, err := c.schedule("Clearing index", func(t *async.Task) error {
		return c.each("clear", func(ix indexer.Indexer) error {
			return ix.RemoveAllFromIndex(context.WithoutCancel(t.Context()))
		})
	})
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// Rebuild clears the index, waits for that, and schedules re-adding every
// entry of the library. Status events report the rebuild to the user.
// Only one rebuild runs at a time; a second call before the first task
// has finished returns ErrRebuildRunning.
func (c *Coordinator) Rebuild(ctx context.Context) (*async.Task, error) {
	if !c.rebuilding.CompareAndSwap(false, true) {
		return nil, ErrRebuildRunning
	}
	lib := c.config.Library
	c.sink.Post(async.StatusEvent(async.EventRebuildRequested, lib, "Rebuilding fulltext search index", nil))

	if err := c.RemoveAllFromIndex(ctx); err != nil {
		c.rebuilding.Store(false)
		c.sink.Post(async.StatusEvent(async.EventRebuildFailed, lib, "Failed to clear the index", err))
		return nil, err
	}
	if c.config.Registry != nil {
		c.config.Registry.Reset()
	}

	var ran atomic.Bool
	t, err := c.schedule("Rebuilding fulltext search index", func(t *async.Task) error {
		ran.Store(true)
		defer c.rebuilding.Store(false)

		c.sink.Post(async.StatusEvent(async.EventRebuildInProgress, lib, "Rebuilding fulltext search index", nil))
		entries := c.config.Source.Entries()
		err := c.each("rebuild", func(ix indexer.Indexer) error {
			if t.IsCanceled() {
				return nil
			}
			return ix.AddToIndex(t, entries)
		})
		switch {
		case err != nil:
			c.sink.Post(async.StatusEvent(async.EventRebuildFailed, lib, "Failed to rebuild the fulltext search index", err))
		case t.IsCanceled():
			c.sink.Post(async.StatusEvent(async.EventRebuildFailed, lib, "Rebuild canceled", context.Canceled))
		default:
			c.sink.Post(async.StatusEvent(async.EventRebuildCompleted, lib, "Fulltext search index rebuilt", nil))
		}
		return err
	})
	if err != nil {
		c.rebuilding.Store(false)
		c.sink.Post(async.StatusEvent(async.EventRebuildFailed, lib, "Failed to schedule the rebuild", err))
		return nil, err
	}
	// A task canceled before it started never clears the flag itself.
	go func() {
		<-t.Done()
		if !ran.Load() {
			c.rebuilding.Store(false)
		}
	}()
	return t, nil
}

// Rebuilding reports whether a rebuild is scheduled or running.
func (c *Coordinator) Rebuilding() bool { return c.rebuilding.Load() }

// UpdateOnStart schedules bringing a reopened index in line with the
// library.
func (c *Coordinator) UpdateOnStart() (*async.Task, error) {
	return c.schedule("Updating fulltext search index", func(t *async.Task) error {
		return c.each("update", func(ix indexer.Indexer) error {
			if t.IsCanceled() {
				return nil
			}
			return ix.UpdateOnStart(t)
		})
	})
}

// Wait blocks until every task scheduled so far has finished.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last == nil {
		return nil
	}
	select {
	case <-last.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further operations. Scheduled tasks keep running.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
