// Package searcher defines the read side handed to a query layer.
//
// A [Handle] is a point-in-time view of one library's index: documents
// committed after the handle was acquired are not visible through it.
// The holder must call Release when done.
//
// Usage:
//
//	h, err := idx.AcquireSearchHandle()
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
//	res, err := searcher.SearchString(ctx, h, "keywords:graphs", 20)
//
// Result hits carry a relevance score. [SortHits] orders hits by score
// first whenever a query was issued and falls back to the caller's order
// otherwise.
package searcher
