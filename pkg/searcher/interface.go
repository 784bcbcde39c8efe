package searcher

import (
	"context"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Handle is a read-only snapshot of an index.
//
// Implementations must be safe for concurrent use until Release.
type Handle interface {
	// Search runs q against the snapshot and returns at most size hits,
	// highest score first. size <= 0 returns every match.
	Search(ctx context.Context, q query.Query, size int) (*Results, error)

	// DocCount returns the number of documents in the snapshot.
	DocCount() (uint64, error)

	// Release frees the snapshot. Calling it more than once is a no-op.
	Release() error
}

// Results is the outcome of one search.
type Results struct {
	Hits     []Hit
	Total    uint64
	MaxScore float64
}

// Hit is one matching document with its stored fields.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string][]string
}

// Field returns the first value of name, or "".
func (h Hit) Field(name string) string {
	if v := h.Fields[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// SearchString parses qs in the bleve query string syntax and runs it.
// A blank string matches every document.
func SearchString(ctx context.Context, h Handle, qs string, size int) (*Results, error) {
	var q query.Query
	if strings.TrimSpace(qs) == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewQueryStringQuery(qs)
	}
	return h.Search(ctx, q, size)
}
