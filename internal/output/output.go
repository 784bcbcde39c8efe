// Package output formats the line-oriented CLI output of amanbib: status
// lines, search hits and aligned name/value tables.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool

	title lipgloss.Style
	dim   lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
}

// New creates a Writer without colors.
func New(out io.Writer) *Writer {
	return NewColored(out, false)
}

// NewColored creates a Writer that colors titles and warnings when
// useColor is set.
func NewColored(out io.Writer, useColor bool) *Writer {
	w := &Writer{out: out, useColor: useColor}
	if useColor {
		w.title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
		w.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
		w.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
		w.fail = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	}
	return w
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✅", fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("⚠️ ", w.render(w.warn, fmt.Sprintf(format, args...)))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status("❌", w.render(w.fail, fmt.Sprintf(format, args...)))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Hit is one search result as shown on the command line.
type Hit struct {
	Title   string
	Score   float64
	Details []string
	Snippet string
}

// Hit prints a numbered search result followed by its details and an
// indented snippet.
func (w *Writer) Hit(num int, h Hit) {
	_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n", num, w.render(w.title, h.Title), w.render(w.dim, fmt.Sprintf("(%.2f)", h.Score)))
	for _, d := range h.Details {
		_, _ = fmt.Fprintf(w.out, "    %s\n", d)
	}
	if h.Snippet != "" {
		for _, line := range strings.Split(h.Snippet, "\n") {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.render(w.dim, "│ "+line))
		}
	}
}

// Table prints name/value rows with the values aligned.
func (w *Writer) Table(rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w.out, "  %-*s  %s\n", width, r[0], w.render(w.dim, r[1]))
	}
}

func (w *Writer) render(s lipgloss.Style, text string) string {
	if !w.useColor {
		return text
	}
	return s.Render(text)
}
