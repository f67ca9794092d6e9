package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"skyfuse://specialists",
			"Specialist Registry",
			mcplib.WithResourceDescription("All registered specialist agents with capabilities and health"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSpecialistsResource,
	)
}

func (s *Server) handleSpecialistsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Specialists == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"specialist registry not configured"}`,
			},
		}, nil
	}
	data, err := json.Marshal(s.deps.Specialists.Snapshot())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
