package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanbib/internal/index"
	"github.com/Aman-CERP/amanbib/internal/output"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	kind   string   // "all", "entry", "page"
	fields []string // stored fields shown for entry hits
	format string   // "text", "json"
}

// searchResult is one hit in --format json output.
type searchResult struct {
	ID      string            `json:"id"`
	Kind    string            `json:"kind"`
	Score   float64           `json:"score"`
	EntryID string            `json:"entry_id,omitempty"`
	Type    string            `json:"entry_type,omitempty"`
	Path    string            `json:"path,omitempty"`
	Page    string            `json:"page,omitempty"`
	Entries []string          `json:"entries,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library",
		Long: `Search entries and linked PDFs using the bleve query string syntax.

Terms without a field match any field. Keyword-list fields such as
keywords and groups match whole keywords only.`,
		Example: `  amanbib search graph neural
  amanbib search 'author:knuth +year:1984'
  amanbib search '"neural networks"' --kind page
  amanbib search 'keywords:ml' --fields title,year --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "all", "Document kind: all, entry, page")
	cmd.Flags().StringSliceVarP(&opts.fields, "fields", "f", []string{"author", "year"}, "Fields shown for entry hits")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, qs string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: use text or json", opts.format)
	}
	if opts.limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", opts.limit)
	}

	q, err := index.NewQuery(qs, opts.kind)
	if err != nil {
		return err
	}

	lib, cfg, err := loadLibrary()
	if err != nil {
		return err
	}
	m, err := openIndex(ctx, lib, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	res, err := m.Search(ctx, q, opts.limit)
	if err != nil {
		return err
	}

	results := make([]searchResult, 0, len(res.Hits))
	for _, h := range res.Hits {
		results = append(results, toSearchResult(h, opts.fields, m.LinkedBy))
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"query":   qs,
			"total":   res.Total,
			"results": results,
		})
	}

	out := newOutput(cmd)
	if len(results) == 0 {
		out.Statusf("🔍", "No results for %q", qs)
		return nil
	}
	out.Statusf("🔍", "%d of %d matches for %q", len(results), res.Total, qs)
	out.Newline()
	for i, r := range results {
		out.Hit(i+1, toOutputHit(r))
	}
	return nil
}

func toSearchResult(h searcher.Hit, fields []string, linkedBy func(string) []string) searchResult {
	r := searchResult{ID: h.ID, Kind: h.Field(schema.DocKind), Score: h.Score}
	if r.Kind == schema.KindPage {
		r.Path = h.Field(schema.FilePath)
		r.Page = h.Field(schema.FilePageNumber)
		r.Entries = slices.Sorted(slices.Values(linkedBy(r.Path)))
		return r
	}
	r.EntryID = h.Field(schema.EntryID)
	r.Type = h.Field(schema.EntryType)
	r.Fields = make(map[string]string)
	for _, name := range append([]string{"title"}, fields...) {
		if vals := h.Fields[name]; len(vals) > 0 && !schema.IsInternal(name) {
			r.Fields[name] = strings.Join(vals, ", ")
		}
	}
	return r
}

func toOutputHit(r searchResult) output.Hit {
	if r.Kind == schema.KindPage {
		h := output.Hit{Title: fmt.Sprintf("%s, page %s", r.Path, r.Page), Score: r.Score}
		if len(r.Entries) > 0 {
			h.Details = []string{"linked by: " + strings.Join(r.Entries, ", ")}
		}
		return h
	}
	h := output.Hit{Title: fmt.Sprintf("%s [%s]", r.EntryID, r.Type), Score: r.Score, Snippet: r.Fields["title"]}
	for _, name := range slices.Sorted(maps.Keys(r.Fields)) {
		if name != "title" {
			h.Details = append(h.Details, name+": "+r.Fields[name])
		}
	}
	return h
}
