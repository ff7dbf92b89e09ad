package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

const defaultLimit = 10

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the search query"`
	Extensions []string `json:"extensions,omitempty" jsonschema:"extensions to query (default: configured defaults or all installed)"`
	Sources    []string `json:"sources,omitempty" jsonschema:"restrict each extension to these sources"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results per extension (default 10)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Groups []SearchGroupOutput `json:"groups"`
	Count  int                 `json:"count"`
}

// SearchGroupOutput holds one extension's results.
type SearchGroupOutput struct {
	Extension string           `json:"extension"`
	Results   []map[string]any `json:"results"`
	Error     string           `json:"error,omitempty"`
}

// ListSourcesInput is the input schema for the list_sources tool.
type ListSourcesInput struct {
	Extensions []string `json:"extensions,omitempty" jsonschema:"extensions to ask (default: all installed)"`
}

// ListSourcesOutput is the output schema for the list_sources tool.
type ListSourcesOutput struct {
	Extensions []ExtensionSourcesOutput `json:"extensions"`
}

// ExtensionSourcesOutput holds the sources of one extension.
type ExtensionSourcesOutput struct {
	Extension string   `json:"extension"`
	Sources   []string `json:"sources"`
	Error     string   `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search through the installed extensions in parallel; results are grouped per extension",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List the sources each extension can search",
	}, s.handleListSources)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := domain.SearchOptions{
		Extensions: extensionIDs(input.Extensions),
		Limit:      limit,
	}
	for _, source := range input.Sources {
		opts.Sources = append(opts.Sources, domain.Source(source))
	}

	groups, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{Groups: make([]SearchGroupOutput, len(groups))}
	for i, group := range groups {
		out := SearchGroupOutput{
			Extension: string(group.ExtensionID),
			Results:   make([]map[string]any, 0, len(group.Results)),
		}
		if group.Err != nil {
			out.Error = group.Err.Error()
		}
		for _, result := range group.Results {
			fields, err := resultFields(result)
			if err != nil {
				return nil, SearchOutput{}, err
			}
			out.Results = append(out.Results, fields)
		}
		output.Count += len(out.Results)
		output.Groups[i] = out
	}

	return nil, output, nil
}

// handleListSources handles the list_sources tool invocation.
func (s *Server) handleListSources(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListSourcesInput,
) (*mcp.CallToolResult, ListSourcesOutput, error) {
	ids := extensionIDs(input.Extensions)
	if len(ids) == 0 {
		available, err := s.ports.Search.Available()
		if err != nil {
			return nil, ListSourcesOutput{}, err
		}
		ids = available
	}

	groups, err := s.ports.Search.ListSources(ctx, ids)
	if err != nil {
		return nil, ListSourcesOutput{}, err
	}

	output := ListSourcesOutput{Extensions: make([]ExtensionSourcesOutput, len(groups))}
	for i, group := range groups {
		out := ExtensionSourcesOutput{
			Extension: string(group.ExtensionID),
			Sources:   make([]string, len(group.Sources)),
		}
		for j, source := range group.Sources {
			out.Sources[j] = string(source)
		}
		if group.Err != nil {
			out.Error = group.Err.Error()
		}
		output.Extensions[i] = out
	}

	return nil, output, nil
}

func extensionIDs(values []string) []domain.ExtensionID {
	ids := make([]domain.ExtensionID, 0, len(values))
	for _, v := range values {
		ids = append(ids, domain.ExtensionID(v))
	}
	return ids
}

// resultFields returns every field the extension sent, provider-specific ones included.
func resultFields(result domain.SearchResult) (map[string]any, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}
	return fields, nil
}
