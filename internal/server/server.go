// Package server provides the MCP server wrapper with lifecycle management.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// instructions is surfaced to MCP clients at initialize time so models know
// the intended call order before picking a tool.
const instructions = `ChatVault extracts and monitors AI chat history from web providers.
Start with list_providers to see what is supported, then validate_credentials
for the account you want to read. Extraction and monitoring tools refuse
credentials that have not been validated. Results land in the conversation
store; use list_conversations and get_conversation to read them back.`

// Server wraps the MCP server with logging middleware applied.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// New creates the MCP server. Logging middleware is installed up front so
// every tool registered afterwards is covered.
func New(version string, logger *slog.Logger) *Server {
	impl := &mcp.Implementation{
		Name:    "chatvault",
		Version: version,
	}

	mcpServer := mcp.NewServer(impl, &mcp.ServerOptions{
		Instructions: instructions,
	})
	mcpServer.AddReceivingMiddleware(LoggingMiddleware(logger))

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// Run serves on stdio and blocks until disconnect or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server for tool registration.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
