package model

import (
	"path/filepath"
	"strings"
)

// LinkedFile describes one file attached to an entry.
type LinkedFile struct {
	Description string
	Link        string
	FileType    string
}

// IsOnline reports whether the link is a URL rather than a local path.
func (f LinkedFile) IsOnline() bool {
	l := strings.ToLower(f.Link)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") ||
		strings.HasPrefix(l, "ftp://") || strings.HasPrefix(l, "www.")
}

// IsPDF reports whether the file is declared or named as a PDF.
func (f LinkedFile) IsPDF() bool {
	if strings.EqualFold(f.FileType, "pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(f.Link), ".pdf")
}

// String renders the descriptor in the file field format.
func (f LinkedFile) String() string {
	return escapeFilePart(f.Description) + ":" + escapeFilePart(f.Link) + ":" + escapeFilePart(f.FileType)
}

// ParseFileField parses a file field value of the form
// "description:link:type;description:link:type". A backslash escapes the
// next character. A single part is a bare link; two parts are a
// description and a link. Descriptors without a link are dropped.
func ParseFileField(value string) []LinkedFile {
	var (
		files  []LinkedFile
		parts  []string
		cur    strings.Builder
		escape bool
	)

	flush := func() {
		parts = append(parts, cur.String())
		cur.Reset()
		if f, ok := fileFromParts(parts); ok {
			files = append(files, f)
		}
		parts = parts[:0]
	}

	for _, r := range value {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case r == ':':
			parts = append(parts, cur.String())
			cur.Reset()
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 || len(parts) > 0 {
		flush()
	}
	return files
}

func fileFromParts(parts []string) (LinkedFile, bool) {
	var f LinkedFile
	switch len(parts) {
	case 0:
		return f, false
	case 1:
		f.Link = parts[0]
	case 2:
		f.Description, f.Link = parts[0], parts[1]
	default:
		f.Description, f.Link, f.FileType = parts[0], parts[1], parts[2]
		// Unescaped colons in the link (URLs, drive letters) spill into
		// further parts. The type is always last.
		if len(parts) > 3 {
			f.Link = strings.Join(parts[1:len(parts)-1], ":")
			f.FileType = parts[len(parts)-1]
		}
	}
	f.Description = strings.TrimSpace(f.Description)
	f.Link = strings.TrimSpace(f.Link)
	f.FileType = strings.TrimSpace(f.FileType)
	return f, f.Link != ""
}

func escapeFilePart(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ":", `\:`, ";", `\;`)
	return r.Replace(s)
}
