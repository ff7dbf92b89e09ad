// Package mcp provides an MCP (Model Context Protocol) server adapter for Sercha.
// It lets AI assistants search through the installed extensions.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
