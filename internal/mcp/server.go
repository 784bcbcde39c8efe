package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanbib/internal/async"
	"github.com/Aman-CERP/amanbib/internal/index"
	"github.com/Aman-CERP/amanbib/internal/model"
	"github.com/Aman-CERP/amanbib/internal/schema"
	"github.com/Aman-CERP/amanbib/internal/telemetry"
	"github.com/Aman-CERP/amanbib/pkg/searcher"
	"github.com/Aman-CERP/amanbib/pkg/version"
)

const (
	defaultLimit   = 10
	maxLimit       = 100
	defaultTimeout = 120 * time.Second

	topTermsReported = 10
)

// Backend is the index the server exposes. *index.Manager implements it.
type Backend interface {
	Search(ctx context.Context, q query.Query, size int) (*searcher.Results, error)
	Registry() *schema.Registry
	Status() index.Status
	Rebuild(ctx context.Context) (*async.Task, error)
	LinkedBy(link string) []string
	Library() *model.Library
}

var _ Backend = (*index.Manager)(nil)

// Server is the MCP server for amanbib.
// It lets AI clients search a library's entries and linked PDFs.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger
	metrics *telemetry.QueryMetrics
}

// NewServer creates a new MCP server over backend.
func NewServer(backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("index backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend: backend,
		logger:  logger,
		metrics: telemetry.NewQueryMetrics(telemetry.DefaultConfig()),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "amanbib",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search",
		Description: "Fulltext search over the bibliography and the text of linked PDFs. " +
			"Supports field queries (author:knuth), phrases, boolean operators and wildcards. " +
			"Page hits name the entries that link the file.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_fields",
		Description: "List the bibliographic fields that can be used in field queries and how each is indexed.",
	}, s.handleListFields)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report whether the index is ready, what it is working on and how many documents it holds.",
	}, s.handleIndexStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rebuild_index",
		Description: "Clear the index and re-add every entry and linked file. Use when results look stale.",
	}, s.handleRebuild)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 4))
}

// handleSearch is the MCP SDK handler for the search tool.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.Limit < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("limit must not be negative")
	}
	limit := clampLimit(input.Limit, defaultLimit, 1, maxLimit)

	q, err := index.NewQuery(input.Query, input.Kind)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	res, err := s.backend.Search(ctx, q, limit)
	if err != nil {
		s.logger.Warn("search_failed",
			slog.String("request_id", requestID),
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{
		Query:    input.Query,
		Total:    res.Total,
		Indexing: s.backend.Status().ActiveTasks > 0,
		Results:  make([]SearchResultOutput, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		out.Results = append(out.Results, s.toResult(h, input.Fields))
	}

	s.metrics.Record(telemetry.QueryEvent{
		Query:       input.Query,
		Kind:        input.Kind,
		ResultCount: res.Total,
		Latency:     time.Since(start),
	})

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("results", len(out.Results)),
		slog.Duration("duration", time.Since(start)))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(out)}},
	}, out, nil
}

// toResult converts a hit into its output form.
func (s *Server) toResult(h searcher.Hit, fields []string) SearchResultOutput {
	r := SearchResultOutput{
		ID:    h.ID,
		Kind:  h.Field(schema.DocKind),
		Score: h.Score,
	}

	switch r.Kind {
	case schema.KindPage:
		r.Path = h.Field(schema.FilePath)
		r.Page, _ = strconv.Atoi(h.Field(schema.FilePageNumber))
		if linked := s.backend.LinkedBy(r.Path); len(linked) > 0 {
			r.Entries = slices.Sorted(slices.Values(linked))
		}
		r.Snippet = snippet(h.Field(schema.FileContent), snippetLength)
	default:
		r.EntryID = h.Field(schema.EntryID)
		r.EntryType = h.Field(schema.EntryType)
		r.Snippet = snippet(h.Field("title"), snippetLength)
		for _, name := range fields {
			vals := h.Fields[name]
			if len(vals) == 0 || schema.IsInternal(name) {
				continue
			}
			if r.Fields == nil {
				r.Fields = make(map[string]string, len(fields))
			}
			r.Fields[name] = joinValues(vals)
		}
	}
	return r
}

// handleListFields is the MCP SDK handler for the list_fields tool.
func (s *Server) handleListFields(_ context.Context, _ *mcp.CallToolRequest, _ ListFieldsInput) (
	*mcp.CallToolResult,
	ListFieldsOutput,
	error,
) {
	reg := s.backend.Registry()
	names := reg.Fields()
	out := ListFieldsOutput{Fields: make([]FieldInfo, 0, len(names))}
	for _, name := range names {
		out.Fields = append(out.Fields, FieldInfo{Name: name, Treatment: reg.Describe(name)})
	}
	return nil, out, nil
}

// handleIndexStatus is the MCP SDK handler for the index_status tool.
func (s *Server) handleIndexStatus(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out := toStatusOutput(s.backend.Status())
	out.Queries = toQueryStats(s.metrics.Snapshot())
	return nil, out, nil
}

func toStatusOutput(st index.Status) IndexStatusOutput {
	out := IndexStatusOutput{
		Library:   st.Library,
		IndexPath: st.IndexPath,
		Stats: IndexStats{
			Entries:     st.Entries,
			Documents:   st.Documents,
			Fields:      st.Fields,
			Commits:     st.Commits,
			CachedFiles: st.CachedFiles,
		},
		Indexing: &IndexingProgress{
			Status:         st.Status,
			Task:           st.Task,
			Done:           st.Done,
			Total:          st.Total,
			ProgressPct:    st.ProgressPct,
			ActiveTasks:    st.ActiveTasks,
			CompletedTasks: st.CompletedTasks,
			FailedTasks:    st.FailedTasks,
			CanceledTasks:  st.CanceledTasks,
			ErrorMessage:   st.ErrorMessage,
		},
	}
	if st.LastRebuild != nil {
		out.Stats.LastRebuild = st.LastRebuild.UTC().Format(time.RFC3339)
	}
	return out
}

// toQueryStats summarizes the search metrics, keeping the top terms only.
func toQueryStats(snap telemetry.Snapshot) *QueryStats {
	qs := &QueryStats{
		Total:             snap.TotalQueries,
		ZeroResults:       snap.ZeroResultCount,
		ZeroResultPct:     snap.ZeroResultPercentage(),
		Repeats:           snap.ExactRepeatCount,
		TopTerms:          make([]TermStat, 0, min(len(snap.TopTerms), topTermsReported)),
		ZeroResultQueries: snap.ZeroResultQueries,
		Since:             snap.Since.UTC().Format(time.RFC3339),
	}
	for _, tc := range snap.TopTerms[:min(len(snap.TopTerms), topTermsReported)] {
		qs.TopTerms = append(qs.TopTerms, TermStat{Term: tc.Term, Count: tc.Count})
	}
	return qs
}

// handleRebuild is the MCP SDK handler for the rebuild_index tool.
func (s *Server) handleRebuild(ctx context.Context, _ *mcp.CallToolRequest, input RebuildInput) (
	*mcp.CallToolResult,
	RebuildOutput,
	error,
) {
	if input.TimeoutSeconds < 0 {
		return nil, RebuildOutput{}, NewInvalidParamsError("timeout_seconds must not be negative")
	}
	// The rebuild outlives the request unless the caller waits for it.
	task, err := s.backend.Rebuild(context.WithoutCancel(ctx))
	if err != nil {
		return nil, RebuildOutput{}, MapError(err)
	}
	s.logger.Info("rebuild_requested", slog.String("task_id", task.ID()), slog.Bool("wait", input.Wait))

	if input.Wait {
		timeout := defaultTimeout
		if input.TimeoutSeconds > 0 {
			timeout = time.Duration(input.TimeoutSeconds) * time.Second
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := task.Wait(waitCtx); err != nil && waitCtx.Err() != nil {
			return nil, RebuildOutput{}, MapError(err)
		}
	}

	out := RebuildOutput{
		TaskID: task.ID(),
		Title:  task.Title(),
		State:  task.State().String(),
	}
	if err := task.Err(); err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

// Serve runs the server on the given transport until ctx is canceled or
// the client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The backend is owned by the caller.
func (s *Server) Close() error {
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
