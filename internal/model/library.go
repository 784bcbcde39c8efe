package model

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
)

// ChangeKind classifies a library change.
type ChangeKind int

const (
	// ChangeAdded reports new entries.
	ChangeAdded ChangeKind = iota
	// ChangeRemoved reports deleted entries.
	ChangeRemoved
	// ChangeModified reports entries whose fields changed.
	ChangeModified
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after the library was mutated.
type Change struct {
	Kind    ChangeKind
	Entries []*Entry
	// Previous holds the prior versions for ChangeModified, aligned with Entries.
	Previous []*Entry
}

// Listener receives library changes. It runs on the goroutine that
// mutated the library, after the library lock is released.
type Listener func(Change)

// Library is a thread-safe, ordered collection of entries.
type Library struct {
	path string

	mu        sync.RWMutex
	order     []string
	entries   map[string]*Entry
	listeners map[int]Listener
	nextID    int
}

// NewLibrary creates an empty library backed by path. The path only
// anchors relative file links and the library's data directory.
func NewLibrary(path string) *Library {
	return &Library{
		path:      path,
		entries:   make(map[string]*Entry),
		listeners: make(map[int]Listener),
	}
}

// Path returns the library file path.
func (l *Library) Path() string { return l.path }

// BaseDir returns the directory containing the library file.
func (l *Library) BaseDir() string { return filepath.Dir(l.path) }

// Name returns the library file name, used in user-facing messages.
func (l *Library) Name() string { return filepath.Base(l.path) }

// Subscribe registers fn and returns a function that removes it.
func (l *Library) Subscribe(fn Listener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// Len returns the number of entries.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Entries returns all entries in insertion order.
func (l *Library) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id])
	}
	return out
}

// Get returns the entry with id.
func (l *Library) Get(id string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	return e, ok
}

// Add inserts entries. Duplicate or empty IDs are rejected before any
// entry is inserted.
func (l *Library) Add(entries ...*Entry) error {
	l.mu.Lock()
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			l.mu.Unlock()
			return fmt.Errorf("entry without id")
		}
		if _, dup := l.entries[e.ID]; dup {
			l.mu.Unlock()
			return fmt.Errorf("duplicate entry id %q", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			l.mu.Unlock()
			return fmt.Errorf("duplicate entry id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	added := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		c := e.Clone()
		l.entries[c.ID] = c
		l.order = append(l.order, c.ID)
		added = append(added, c)
	}
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	notify(listeners, Change{Kind: ChangeAdded, Entries: added})
	return nil
}

// Remove deletes the entries with the given IDs. Unknown IDs are ignored.
func (l *Library) Remove(ids ...string) {
	l.mu.Lock()
	var removed []*Entry
	for _, id := range ids {
		if e, ok := l.entries[id]; ok {
			removed = append(removed, e)
			delete(l.entries, id)
		}
	}
	l.compactOrder()
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	if len(removed) > 0 {
		notify(listeners, Change{Kind: ChangeRemoved, Entries: removed})
	}
}

// Update replaces an existing entry. An unchanged entry is not reported.
func (l *Library) Update(e *Entry) error {
	l.mu.Lock()
	prev, ok := l.entries[e.ID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("unknown entry id %q", e.ID)
	}
	if prev.Equal(e) {
		l.mu.Unlock()
		return nil
	}
	c := e.Clone()
	l.entries[c.ID] = c
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	notify(listeners, Change{Kind: ChangeModified, Entries: []*Entry{c}, Previous: []*Entry{prev}})
	return nil
}

// Replace swaps the whole content for entries and reports the difference
// as removed, modified and added changes, in that order.
func (l *Library) Replace(entries []*Entry) error {
	next := make(map[string]*Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry without id")
		}
		if _, dup := next[e.ID]; dup {
			return fmt.Errorf("duplicate entry id %q", e.ID)
		}
		next[e.ID] = e.Clone()
		order = append(order, e.ID)
	}

	l.mu.Lock()
	var removed, added, modified, previous []*Entry
	for _, id := range l.order {
		if _, ok := next[id]; !ok {
			removed = append(removed, l.entries[id])
		}
	}
	for _, id := range order {
		e := next[id]
		prev, ok := l.entries[id]
		switch {
		case !ok:
			added = append(added, e)
		case !prev.Equal(e):
			modified = append(modified, e)
			previous = append(previous, prev)
		default:
			next[id] = prev
		}
	}
	l.entries = next
	l.order = order
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	if len(removed) > 0 {
		notify(listeners, Change{Kind: ChangeRemoved, Entries: removed})
	}
	if len(modified) > 0 {
		notify(listeners, Change{Kind: ChangeModified, Entries: modified, Previous: previous})
	}
	if len(added) > 0 {
		notify(listeners, Change{Kind: ChangeAdded, Entries: added})
	}
	return nil
}

// compactOrder drops IDs no longer present. Callers hold l.mu.
func (l *Library) compactOrder() {
	kept := l.order[:0]
	for _, id := range l.order {
		if _, ok := l.entries[id]; ok {
			kept = append(kept, id)
		}
	}
	l.order = kept
}

// snapshotListeners copies the listener set. Callers hold l.mu.
func (l *Library) snapshotListeners() []Listener {
	ids := make([]int, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = l.listeners[id]
	}
	return out
}

func notify(listeners []Listener, c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
