package model

import (
	"os"
	"path/filepath"
)

// FileResolver maps linked-file descriptors to files on disk.
type FileResolver struct {
	// BaseDir is the library directory; relative links resolve against it first.
	BaseDir string
	// Dirs are further base directories tried in order.
	Dirs []string
}

// Resolve returns the absolute path of f's link if it names an existing
// regular file. Online links never resolve.
func (r FileResolver) Resolve(f LinkedFile) (string, bool) {
	if f.Link == "" || f.IsOnline() {
		return "", false
	}

	link := filepath.FromSlash(f.Link)
	if filepath.IsAbs(link) {
		return checkFile(link)
	}

	bases := make([]string, 0, len(r.Dirs)+1)
	if r.BaseDir != "" {
		bases = append(bases, r.BaseDir)
	}
	for _, dir := range r.Dirs {
		// Relative extra directories are relative to the library.
		if !filepath.IsAbs(dir) && r.BaseDir != "" {
			dir = filepath.Join(r.BaseDir, dir)
		}
		bases = append(bases, dir)
	}
	for _, base := range bases {
		if p, ok := checkFile(filepath.Join(base, link)); ok {
			return p, true
		}
	}
	return "", false
}

func checkFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}
	return abs, true
}
