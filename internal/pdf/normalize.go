package pdf

import (
	"regexp"
	"strings"
)

// linebreakWithoutPeriod matches a line break preceded by anything other
// than a period or a backslash.
var linebreakWithoutPeriod = regexp.MustCompile(`([^\\.])\n`)

// MergeLines undoes the line wrapping of extracted PDF text. It first joins
// words hyphenated across a line break, then replaces each line break not
// preceded by a period with a space. Breaks after a sentence end survive.
func MergeLines(text string) string {
	merged := strings.ReplaceAll(text, "-\n", "")
	return linebreakWithoutPeriod.ReplaceAllString(merged, "$1 ")
}
