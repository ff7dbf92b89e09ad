package mcp

import (
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search queries extensions.
	Search driving.SearchService

	// Registry reports live extension processes. Optional.
	Registry driving.ExtensionRegistry
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
