package schema

import (
	"slices"
	"strings"
	"sync"
)

// Treatment is how a field is indexed.
type Treatment int

const (
	// Text fields are tokenized and scored.
	Text Treatment = iota
	// Keyword fields are matched exactly, one term per value.
	Keyword
	// StoredOnly fields are retrievable but not searchable.
	StoredOnly
)

func (t Treatment) String() string {
	switch t {
	case Keyword:
		return "keyword"
	case StoredOnly:
		return "stored"
	default:
		return "text"
	}
}

// fixedKeywords are keyword fields regardless of configuration.
var fixedKeywords = []string{EntryID, EntryType, DocKind, FilePath, FilePageNumber, FileModified}

// Registry maps field names to treatments and records every bibliographic
// field name observed while indexing. Observed names are never forgotten
// except by Reset. Safe for concurrent use.
type Registry struct {
	fileField    string
	keywordLists map[string]struct{}
	storedOnly   map[string]struct{}

	mu   sync.RWMutex
	seen map[string]Treatment
}

// NewRegistry creates a registry. keywordLists are split into tokens and
// indexed as keywords; fileField holds linked files; storedOnly fields are
// kept but not indexed.
func NewRegistry(keywordLists []string, fileField string, storedOnly ...string) *Registry {
	r := &Registry{
		fileField:    strings.ToLower(fileField),
		keywordLists: make(map[string]struct{}, len(keywordLists)),
		storedOnly:   make(map[string]struct{}, len(storedOnly)),
		seen:         make(map[string]Treatment),
	}
	for _, f := range keywordLists {
		r.keywordLists[strings.ToLower(f)] = struct{}{}
	}
	for _, f := range storedOnly {
		r.storedOnly[strings.ToLower(f)] = struct{}{}
	}
	return r
}

// FileField returns the name of the linked-file field.
func (r *Registry) FileField() string { return r.fileField }

// IsKeywordList reports whether name is split on the keyword separator.
func (r *Registry) IsKeywordList(name string) bool {
	_, ok := r.keywordLists[strings.ToLower(name)]
	return ok
}

// IsFileField reports whether name holds linked files.
func (r *Registry) IsFileField(name string) bool {
	return strings.EqualFold(name, r.fileField)
}

// Treatment returns how name is indexed, without recording it.
func (r *Registry) Treatment(name string) Treatment {
	if slices.Contains(fixedKeywords, name) {
		return Keyword
	}
	name = strings.ToLower(name)
	switch {
	case r.IsKeywordList(name), r.IsFileField(name):
		return Keyword
	case r.isStoredOnly(name):
		return StoredOnly
	default:
		return Text
	}
}

// Describe names the treatment of name for display. Keyword lists and
// the file field are reported separately from plain keywords.
func (r *Registry) Describe(name string) string {
	switch {
	case r.IsFileField(name):
		return "file"
	case r.IsKeywordList(name):
		return "keyword_list"
	default:
		return r.Treatment(name).String()
	}
}

// Observe records name as seen and returns its treatment. Internal and
// page fields are classified but never listed by Fields.
func (r *Registry) Observe(name string) Treatment {
	t := r.Treatment(name)
	if IsInternal(name) {
		return t
	}
	key := strings.ToLower(name)

	r.mu.RLock()
	_, ok := r.seen[key]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	r.seen[key] = t
	r.mu.Unlock()
	return t
}

// Known reports whether name has been observed.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[strings.ToLower(name)]
	return ok
}

// Fields returns the observed field names, sorted.
func (r *Registry) Fields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.seen))
	for name := range r.seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// KeywordFields returns every field indexed as a keyword that is known up
// front, sorted.
func (r *Registry) KeywordFields() []string {
	out := slices.Clone(fixedKeywords)
	for f := range r.keywordLists {
		out = append(out, f)
	}
	if r.fileField != "" {
		out = append(out, r.fileField)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Reset forgets every observed field. Only a full rebuild calls it.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.seen = make(map[string]Treatment)
	r.mu.Unlock()
}

func (r *Registry) isStoredOnly(name string) bool {
	_, ok := r.storedOnly[name]
	return ok
}
