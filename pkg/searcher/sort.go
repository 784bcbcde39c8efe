package searcher

import (
	"cmp"
	"slices"
)

// SortHits orders hits in place. When queried is true, score descending is
// the primary key and fallback breaks ties; otherwise only fallback applies.
// A nil fallback keeps the existing relative order.
func SortHits(hits []Hit, queried bool, fallback func(a, b Hit) int) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if queried {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
		}
		if fallback != nil {
			return fallback(a, b)
		}
		return 0
	})
}

// ByField returns a fallback comparing the first value of a stored field.
func ByField(name string) func(a, b Hit) int {
	return func(a, b Hit) int {
		return cmp.Compare(a.Field(name), b.Field(name))
	}
}
