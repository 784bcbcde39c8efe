package model

import (
	"maps"
	"slices"
	"strings"
)

// Entry is one bibliographic record. Entries handed out by a Library are
// shared and must be treated as immutable; use Clone before editing.
type Entry struct {
	// ID is the stable identity of the entry within its library.
	ID string `yaml:"id" json:"id"`
	// Type is the entry type (article, book, ...).
	Type string `yaml:"type" json:"type"`
	// Fields maps field names to raw values.
	Fields map[string]string `yaml:"fields" json:"fields"`
}

// NewEntry creates an entry with the given fields.
func NewEntry(id, entryType string, fields map[string]string) *Entry {
	e := &Entry{ID: id, Type: entryType, Fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		e.Fields[strings.ToLower(k)] = v
	}
	return e
}

// Field returns the value of a field. Names are case-insensitive.
func (e *Entry) Field(name string) (string, bool) {
	v, ok := e.Fields[strings.ToLower(name)]
	return v, ok
}

// FieldNames returns the names of all populated fields, sorted.
func (e *Entry) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		if strings.TrimSpace(v) != "" {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}

// Files parses the linked-file field.
func (e *Entry) Files(fileField string) []LinkedFile {
	v, ok := e.Field(fileField)
	if !ok {
		return nil
	}
	return ParseFileField(v)
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	return &Entry{ID: e.ID, Type: e.Type, Fields: maps.Clone(e.Fields)}
}

// Equal reports whether both entries carry the same type and fields.
func (e *Entry) Equal(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID && e.Type == other.Type && maps.Equal(e.Fields, other.Fields)
}
