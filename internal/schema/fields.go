// Package schema defines the fields of the fulltext index, how each one is
// indexed, and which bibliographic field names have been seen so far.
package schema

import (
	"strconv"
	"strings"
)

// Version is stored alongside every persisted index. An index written
// under another version is discarded and rebuilt.
const Version = "1"

// Header document fields.
const (
	EntryID   = "id"
	EntryType = "entrytype"
)

// DocKind marks every document with the indexer that owns it so each
// indexer can clear only its own documents.
const DocKind = "doc_kind"

// Values of DocKind.
const (
	KindEntry = "entry"
	KindPage  = "page"
)

// FilePrefix starts every page document field.
const FilePrefix = "f_"

// Page document fields.
const (
	FilePath        = FilePrefix + "path"
	FileContent     = FilePrefix + "content"
	FileAnnotations = FilePrefix + "annotations"
	FilePageNumber  = FilePrefix + "pageNumber"
	FileModified    = FilePrefix + "modified"
)

// AllField is the composite field searched by queries without a field.
const AllField = "_all"

// IsInternal reports whether name is bookkeeping the query layer never sees
// as a bibliographic field.
func IsInternal(name string) bool {
	return name == DocKind || name == AllField || strings.HasPrefix(name, FilePrefix)
}

// EntryDocID is the document ID of an entry's header document.
func EntryDocID(entryID string) string {
	return KindEntry + ":" + entryID
}

// PageDocID is the document ID of one page of a linked file. Page 1 is
// also used by the fallback document of an unreadable file.
func PageDocID(link string, page int) string {
	return KindPage + ":" + link + "#" + strconv.Itoa(page)
}
