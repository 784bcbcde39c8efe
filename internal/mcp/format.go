package mcp

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

const snippetLength = 240

// FormatSearchResults renders a search result as markdown for clients
// that ignore structured content.
func FormatSearchResults(out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", out.Query)
	fmt.Fprintf(&sb, "Showing %d of %d match", len(out.Results), out.Total)
	if out.Total != 1 {
		sb.WriteString("es")
	}
	sb.WriteString("\n\n")
	if out.Indexing {
		sb.WriteString("_Indexing is still in progress; results may be incomplete._\n\n")
	}

	for i, r := range out.Results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, r SearchResultOutput) {
	if r.Kind == "page" {
		fmt.Fprintf(sb, "### %d. %s, page %d (score: %.2f)\n", num, r.Path, r.Page, r.Score)
		if len(r.Entries) > 0 {
			fmt.Fprintf(sb, "**Linked by:** %s\n", strings.Join(r.Entries, ", "))
		}
	} else {
		fmt.Fprintf(sb, "### %d. %s [%s] (score: %.2f)\n", num, r.EntryID, r.EntryType, r.Score)
		for _, name := range sortedKeys(r.Fields) {
			fmt.Fprintf(sb, "- **%s:** %s\n", name, r.Fields[name])
		}
	}
	if r.Snippet != "" {
		fmt.Fprintf(sb, "\n> %s\n", r.Snippet)
	}
	sb.WriteString("\n")
}

// clampLimit constrains limit to [minVal, maxVal], using defaultVal when
// limit is not set.
func clampLimit(limit, defaultVal, minVal, maxVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(max(limit, minVal), maxVal)
}

// snippet collapses whitespace and cuts text to at most n runes, breaking
// at a word boundary when one is near.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

// joinValues renders a multi-valued stored field.
func joinValues(vals []string) string {
	return strings.Join(vals, ", ")
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
