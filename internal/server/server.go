package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/supabase-mcp/internal/tools"
)

type Server struct {
	cfg       Config
	mcpServer *mcp.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	registry := cfg.Registry
	for _, tool := range registry.Tools() {
		name := tool.Name
		mcpServer.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return registry.Call(ctx, name, req.Params.Arguments)
		})
		cfg.Logger.Debug("server: registered tool", "name", name)
	}
	mcpServer.AddReceivingMiddleware(unknownToolMiddleware(registry))

	return &Server{
		cfg:       cfg,
		mcpServer: mcpServer,
	}, nil
}

// Run serves MCP on the configured transport until the peer disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.cfg.Logger.Info("server: mcp serving", "name", s.cfg.Name, "version", s.cfg.Version)

	err := s.mcpServer.Run(ctx, s.cfg.Transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to run mcp server: %w", err)
	}
	s.cfg.Logger.Info("server: shutting down")
	return nil
}

// unknownToolMiddleware answers tools/call for unregistered names with a JSON-RPC
// method-not-found error instead of the SDK's invalid-params default.
func unknownToolMiddleware(registry *tools.Registry) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			call, ok := req.(*mcp.CallToolRequest)
			if !ok || call.Params == nil || registry.Has(call.Params.Name) {
				return next(ctx, method, req)
			}
			_, err := registry.Call(ctx, call.Params.Name, call.Params.Arguments)
			return nil, &jsonrpc.Error{
				Code:    jsonrpc.CodeMethodNotFound,
				Message: err.Error(),
			}
		}
	}
}
