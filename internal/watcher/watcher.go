package watcher

import (
	"fmt"
	"log/slog"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates the file appeared.
	OpCreate Operation = iota
	// OpModify indicates the file was written.
	OpModify
	// OpDelete indicates the file was removed.
	OpDelete
	// OpRename indicates the file was moved away. Editors that save by
	// renaming a temporary file over the library produce a Rename for
	// the old inode followed by a Create.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Gone reports whether the operation leaves no file at the path.
func (op Operation) Gone() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a reload.
	// Default: 500ms
	DebounceWindow time.Duration

	// MaxWait bounds how long a reload can be postponed by a steady
	// stream of writes. Zero uses 10 debounce windows.
	MaxWait time.Duration

	// Logger receives reload diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// OnReload is called after every reload attempt with the number of
	// entries read, or the error that prevented the reload.
	OnReload func(entries int, err error)
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
	}
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	if o.DebounceWindow < 0 {
		return fmt.Errorf("debounce window must not be negative, got %s", o.DebounceWindow)
	}
	if o.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative, got %s", o.MaxWait)
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.MaxWait == 0 {
		o.MaxWait = 10 * o.DebounceWindow
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
