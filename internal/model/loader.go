package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// libraryFile is the on-disk YAML layout:
//
//	entries:
//	  - id: knuth1984
//	    type: article
//	    fields:
//	      title: Literate Programming
//	      keywords: programming, documentation
//	      file: ":papers/knuth1984.pdf:PDF"
type libraryFile struct {
	Entries []*Entry `yaml:"entries"`
}

// ReadEntries parses the library file at path.
func ReadEntries(path string) ([]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library %s: %w", path, err)
	}

	var lf libraryFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse library %s: %w", path, err)
	}

	out := make([]*Entry, 0, len(lf.Entries))
	for i, e := range lf.Entries {
		if e == nil || strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("library %s: entry %d has no id", path, i)
		}
		out = append(out, NewEntry(strings.TrimSpace(e.ID), e.Type, e.Fields))
	}
	return out, nil
}

// LoadLibrary reads the library file at path into a new Library.
func LoadLibrary(path string) (*Library, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, err
	}
	lib := NewLibrary(path)
	if err := lib.Add(entries...); err != nil {
		return nil, fmt.Errorf("library %s: %w", path, err)
	}
	return lib, nil
}

// WriteLibrary saves entries to path in the YAML library format.
func WriteLibrary(path string, entries []*Entry) error {
	data, err := yaml.Marshal(libraryFile{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal library: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write library %s: %w", path, err)
	}
	return nil
}
