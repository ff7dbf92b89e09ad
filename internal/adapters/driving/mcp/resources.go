package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for Sercha resources.
	uriScheme = "sercha://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "extensions",
		Name:        "extensions",
		Description: "Installed extensions and the state of their processes",
		MIMEType:    "application/json",
	}, s.handleExtensionsResource)
}

// extensionInfo describes one installed extension.
type extensionInfo struct {
	ID    string `json:"id"`
	State string `json:"state"`
	PID   int    `json:"pid,omitempty"`
}

// handleExtensionsResource lists installed extensions. Extensions without a
// live process are reported as "stopped".
func (s *Server) handleExtensionsResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	installed, err := s.ports.Search.Available()
	if err != nil {
		return nil, fmt.Errorf("listing extensions: %w", err)
	}

	live := make(map[domain.ExtensionID]domain.ExtensionInfo)
	if s.ports.Registry != nil {
		for _, info := range s.ports.Registry.List() {
			live[info.ID] = info
		}
	}

	infos := make([]extensionInfo, 0, len(installed))
	for _, id := range installed {
		info := extensionInfo{ID: string(id), State: "stopped"}
		if running, ok := live[id]; ok {
			info.State = running.State.String()
			info.PID = running.PID
		}
		infos = append(infos, info)
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling extensions: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
