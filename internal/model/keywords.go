package model

import "strings"

// ParseKeywords splits a keyword-list value on sep. Tokens are trimmed,
// empty tokens are dropped and repeated tokens are kept once, in order of
// first appearance.
func ParseKeywords(value, sep string) []string {
	if sep == "" {
		sep = ","
	}
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(value, sep) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
