// Package mcp exposes skyfuse operations as Model Context Protocol tools,
// so MCP-capable assistants can query specialists and submit analyses.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/task"
)

// SpecialistReader exposes the known specialist set.
type SpecialistReader interface {
	Snapshot() []agent.Card
}

// TaskReader looks up tasks by ID.
type TaskReader interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// AnalysisRunner submits a request and drives it to a resting state.
type AnalysisRunner interface {
	HandleSync(ctx context.Context, id, sessionID string, msg task.Message, pushTarget string) (*task.Task, error)
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// ServerDeps are the collaborators MCP tools call into. Nil dependencies
// make the corresponding tools report an error instead of panicking.
type ServerDeps struct {
	Specialists SpecialistReader
	Tasks       TaskReader
	Runner      AnalysisRunner
}

// Server wraps the mcp-go server with skyfuse tools and resources.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *mcpserver.StreamableHTTPServer
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(true, true),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server, for tests and embedding.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves MCP over streamable HTTP in the background.
func (s *Server) Start() error {
	s.httpServer = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	go func() {
		slog.Info("mcp server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the MCP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
