package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/model"
)

// reloadRetry covers editors that truncate the file before writing it.
var reloadRetry = amerrors.RetryConfig{
	MaxRetries:   3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     400 * time.Millisecond,
	Multiplier:   2.0,
}

// LibraryWatcher reloads a library whenever its file changes on disk.
// Reloads go through Library.Replace, so subscribers see the difference
// as removed, modified and added changes.
//
// The parent directory is watched instead of the file itself so that
// saves which replace the file by rename keep being observed.
type LibraryWatcher struct {
	library *model.Library
	path    string
	opts    Options
	logger  *slog.Logger

	fsw       *fsnotify.Watcher
	debouncer *Debouncer

	reloads  atomic.Int64
	failures atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLibraryWatcher starts watching the directory holding lib's file.
// Events are only collected once Run is called.
func NewLibraryWatcher(lib *model.Library, opts Options) (*LibraryWatcher, error) {
	if lib == nil || lib.Path() == "" {
		return nil, fmt.Errorf("library watcher requires a library backed by a file")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	path, err := filepath.Abs(lib.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &LibraryWatcher{
		library:   lib,
		path:      path,
		opts:      opts,
		logger:    opts.Logger,
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.MaxWait, opts.Logger),
		stopCh:    make(chan struct{}),
	}, nil
}

// Path returns the absolute path of the watched library file.
func (w *LibraryWatcher) Path() string { return w.path }

// Reloads returns the number of successful reloads.
func (w *LibraryWatcher) Reloads() int64 { return w.reloads.Load() }

// Failures returns the number of reloads that could not read the file.
func (w *LibraryWatcher) Failures() int64 { return w.failures.Load() }

// Run processes file events until ctx is done or Stop is called.
func (w *LibraryWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.Stop() }()

	w.logger.Info("library_watch_started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.opts.DebounceWindow))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("library_watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return nil
			}
			w.apply(ctx, batch)
		}
	}
}

// handle forwards events for the library file to the debouncer.
func (w *LibraryWatcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
}

func (w *LibraryWatcher) apply(ctx context.Context, batch []FileEvent) {
	for _, ev := range batch {
		if ev.Path != w.path {
			continue
		}
		if ev.Operation.Gone() {
			w.logger.Info("library_missing",
				slog.String("path", w.path),
				slog.String("op", ev.Operation.String()))
			continue
		}
		_ = w.Reload(ctx)
	}
}

// Reload reads the library file and replaces the library content.
func (w *LibraryWatcher) Reload(ctx context.Context) error {
	start := time.Now()

	var entries []*model.Entry
	err := amerrors.Retry(ctx, reloadRetry, func() error {
		var readErr error
		entries, readErr = model.ReadEntries(w.path)
		return readErr
	})
	if err == nil {
		err = w.library.Replace(entries)
	}

	if err != nil {
		w.failures.Add(1)
		code := amerrors.ErrCodeFileCorrupt
		if errors.Is(err, fs.ErrNotExist) {
			code = amerrors.ErrCodeFileNotFound
		}
		wrapped := amerrors.New(code, "failed to reload library", err).
			WithDetail("path", w.path)
		w.logger.Warn("library_reload_failed",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		if w.opts.OnReload != nil {
			w.opts.OnReload(0, wrapped)
		}
		return wrapped
	}

	w.reloads.Add(1)
	w.logger.Info("library_reloaded",
		slog.String("path", w.path),
		slog.Int("entries", len(entries)),
		slog.Duration("duration", time.Since(start)))
	if w.opts.OnReload != nil {
		w.opts.OnReload(len(entries), nil)
	}
	return nil
}

// Stop stops watching. Safe to call multiple times.
func (w *LibraryWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
		err = w.fsw.Close()
	})
	return err
}
