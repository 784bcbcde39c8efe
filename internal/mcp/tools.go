package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query  string   `json:"query" jsonschema:"query in bleve query string syntax, e.g. title:graph +keywords:ml; blank matches everything"`
	Kind   string   `json:"kind,omitempty" jsonschema:"restrict hits to entry or page documents; default all"`
	Limit  int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	Fields []string `json:"fields,omitempty" jsonschema:"stored fields to return for each entry hit; default none"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query    string               `json:"query" jsonschema:"the query that was executed"`
	Total    uint64               `json:"total" jsonschema:"number of matching documents before the limit"`
	Indexing bool                 `json:"indexing,omitempty" jsonschema:"true while the index is still being updated"`
	Results  []SearchResultOutput `json:"results" jsonschema:"list of search results, best first"`
}

// SearchResultOutput is one matching document.
type SearchResultOutput struct {
	ID        string            `json:"id" jsonschema:"document ID"`
	Kind      string            `json:"kind" jsonschema:"entry or page"`
	Score     float64           `json:"score" jsonschema:"relevance score"`
	EntryID   string            `json:"entry_id,omitempty" jsonschema:"entry ID for entry documents"`
	EntryType string            `json:"entry_type,omitempty" jsonschema:"entry type for entry documents"`
	Path      string            `json:"path,omitempty" jsonschema:"linked file for page documents"`
	Page      int               `json:"page,omitempty" jsonschema:"1-based page number for page documents"`
	Entries   []string          `json:"entries,omitempty" jsonschema:"entries linking the file of a page document"`
	Fields    map[string]string `json:"fields,omitempty" jsonschema:"requested stored fields"`
	Snippet   string            `json:"snippet,omitempty" jsonschema:"start of the page text or the entry title"`
}

// ListFieldsInput defines the input schema for the list_fields tool (no parameters).
type ListFieldsInput struct{}

// ListFieldsOutput defines the output schema for the list_fields tool.
type ListFieldsOutput struct {
	Fields []FieldInfo `json:"fields" jsonschema:"bibliographic fields seen so far"`
}

// FieldInfo describes how one field is indexed.
type FieldInfo struct {
	Name      string `json:"name"`
	Treatment string `json:"treatment" jsonschema:"text, keyword, keyword_list, file or stored"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Library   string            `json:"library"`
	IndexPath string            `json:"index_path,omitempty"`
	Stats     IndexStats        `json:"stats"`
	Indexing  *IndexingProgress `json:"indexing,omitempty"`
	Queries   *QueryStats       `json:"queries,omitempty"`
}

// QueryStats summarizes the searches served since the server started.
type QueryStats struct {
	Total             int64      `json:"total"`
	ZeroResults       int64      `json:"zero_results"`
	ZeroResultPct     float64    `json:"zero_result_pct"`
	Repeats           int64      `json:"repeats" jsonschema:"searches identical to a recent one"`
	TopTerms          []TermStat `json:"top_terms" jsonschema:"most searched terms, most frequent first"`
	ZeroResultQueries []string   `json:"zero_result_queries" jsonschema:"recent searches that found nothing"`
	Since             string     `json:"since"`
}

// TermStat is a search term and how often it was used.
type TermStat struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	Entries     int    `json:"entries"`
	Documents   uint64 `json:"documents"`
	Fields      int    `json:"fields"`
	Commits     uint64 `json:"commits" jsonschema:"index writes since the server started"`
	CachedFiles int    `json:"cached_files" jsonschema:"PDF extractions kept in the cache"`
	LastRebuild string `json:"last_rebuild,omitempty"`
}

// IndexingProgress reports the task currently running, if any.
type IndexingProgress struct {
	Status         string  `json:"status"`
	Task           string  `json:"task,omitempty"`
	Done           int     `json:"done"`
	Total          int     `json:"total"`
	ProgressPct    float64 `json:"progress_pct"`
	ActiveTasks    int     `json:"active_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`
	CanceledTasks  int     `json:"canceled_tasks"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// RebuildInput defines the input schema for the rebuild_index tool.
type RebuildInput struct {
	Wait           bool `json:"wait,omitempty" jsonschema:"block until the rebuild finishes"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty" jsonschema:"how long to wait when wait is set, default 120"`
}

// RebuildOutput defines the output schema for the rebuild_index tool.
type RebuildOutput struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	State  string `json:"state" jsonschema:"pending, running, completed, failed or canceled"`
	Error  string `json:"error,omitempty"`
}
