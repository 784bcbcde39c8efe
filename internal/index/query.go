package index

import (
	"context"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/store"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// NewQuery parses qs in the bleve query string syntax. A blank qs matches
// every document. kind, when set, restricts hits to schema.KindEntry or
// schema.KindPage documents.
func NewQuery(qs, kind string) (query.Query, error) {
	var q query.Query
	if strings.TrimSpace(qs) == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		qsq := bleve.NewQueryStringQuery(qs)
		if _, err := qsq.Parse(); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "invalid query: "+err.Error(), err).
				WithSuggestion("Quote phrases and escape special characters such as : + - with a backslash.")
		}
		q = qsq
	}

	switch kind {
	case "", "all":
		return q, nil
	case schema.KindEntry, schema.KindPage:
		return bleve.NewConjunctionQuery(q, store.TermQuery(schema.DocKind, kind)), nil
	default:
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "unknown document kind "+kind, nil).
			WithSuggestion("Use entry, page or all.")
	}
}

// Search runs q against a private snapshot that is released before
// returning. Unlike Handle it is safe for concurrent callers.
func (m *Manager) Search(ctx context.Context, q query.Query, size int) (*searcher.Results, error) {
	snap, err := m.store.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = snap.Release() }()

	return snap.Search(ctx, q, size)
}
