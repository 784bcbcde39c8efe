package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains index health information for one library.
type StatusInfo struct {
	Library     string    `json:"library"`
	IndexPath   string    `json:"index_path,omitempty"`
	Status      string    `json:"status"`
	Entries     int       `json:"entries"`
	Documents   uint64    `json:"documents"`
	Fields      int       `json:"fields"`
	LastIndexed time.Time `json:"last_indexed,omitempty"`

	IndexSize int64 `json:"index_size"`
	CacheSize int64 `json:"cache_size"`

	Schema        string `json:"schema,omitempty"`
	NeedsRebuild  bool   `json:"needs_rebuild"`
	IndexPDFs     bool   `json:"index_pdfs"`
	WatcherStatus string `json:"watcher_status,omitempty"` // "running", "stopped", "n/a"
	Error         string `json:"error,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.Library))

	_, _ = fmt.Fprintf(r.out, "  Status:       %s\n", r.renderStatus(info.Status))
	_, _ = fmt.Fprintf(r.out, "  Entries:      %d\n", info.Entries)
	_, _ = fmt.Fprintf(r.out, "  Documents:    %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Fields:       %d\n", info.Fields)
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	if info.NeedsRebuild {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.styles.Warning.Render("Index was missing or outdated and is being rebuilt"))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	if info.IndexPath != "" {
		_, _ = fmt.Fprintf(r.out, "    Index:      %s (%s)\n", FormatBytes(info.IndexSize), info.IndexPath)
	} else {
		_, _ = fmt.Fprintln(r.out, "    Index:      in memory")
	}
	_, _ = fmt.Fprintf(r.out, "    PDF cache:  %s\n", FormatBytes(info.CacheSize))
	_, _ = fmt.Fprintln(r.out)

	pdfs := "disabled"
	if info.IndexPDFs {
		pdfs = "enabled"
	}
	_, _ = fmt.Fprintf(r.out, "  Linked PDFs: %s\n", pdfs)
	if info.WatcherStatus != "" && info.WatcherStatus != "n/a" {
		_, _ = fmt.Fprintf(r.out, "  Watcher:     %s\n", r.renderStatus(info.WatcherStatus))
	}
	if info.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  Error:       %s\n", r.styles.Error.Render(info.Error))
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running", "idle":
		return r.styles.Success.Render(status)
	case "indexing", "rebuilding", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
