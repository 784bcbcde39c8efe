package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"hyphen joined", "auto-\nmated text", "automated text"},
		{"break kept after period", "End of sentence.\nNext one", "End of sentence.\nNext one"},
		{"wrapped line", "wrapped\nline", "wrapped line"},
		{"hyphenated word", "infor-\nmation", "information"},
		{"soft wrap", "hello\nworld", "hello world"},
		{"sentence end kept", "first.\nSecond", "first.\nSecond"},
		{"backslash kept", "a\\\nb", "a\\\nb"},
		{"leading break kept", "\nabc", "\nabc"},
		{"adjacent breaks", "a\n\nb", "a \nb"},
		{"empty", "", ""},
		{"no breaks", "plain text", "plain text"},
		{"mixed", "The al-\ngorithm runs\nfast.\nIt ends.", "The algorithm runs fast.\nIt ends."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeLines(tt.in))
		})
	}
}
