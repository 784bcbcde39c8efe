// Package watcher keeps a loaded library in sync with its file on disk.
//
// A LibraryWatcher watches the directory holding the library file with
// fsnotify, debounces bursts of writes, then re-reads the file and hands
// the entries to Library.Replace. Subscribers of the library, such as the
// index coordinator, receive the difference as ordinary change events.
//
// Usage:
//
//	w, err := watcher.NewLibraryWatcher(lib, watcher.Options{
//	    DebounceWindow: cfg.DebounceDuration(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	return w.Run(ctx)
package watcher
