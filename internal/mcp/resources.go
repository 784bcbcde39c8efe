package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	statusURI      = "amanbib://status"
	entryURIPrefix = "amanbib://entry/"
	jsonMIME       = "application/json"
)

// registerResources registers the status resource and the entry template.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "index_status",
			URI:         statusURI,
			Description: "Indexing state and size of the fulltext index",
			MIMEType:    jsonMIME,
		},
		s.handleStatusResource,
	)

	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "entry",
			URITemplate: entryURIPrefix + "{id}",
			Description: "A bibliography entry with all of its fields",
			MIMEType:    jsonMIME,
		},
		s.handleEntryResource,
	)
}

func (s *Server) handleStatusResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(statusURI, toStatusOutput(s.backend.Status()))
}

func (s *Server) handleEntryResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, entryURIPrefix)
	if !ok || id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	e, ok := s.backend.Library().Get(id)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return jsonResource(uri, e)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: jsonMIME,
				Text:     string(content),
			},
		},
	}, nil
}
