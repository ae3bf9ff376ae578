package server

import (
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/supabase-mcp/internal/tools"
)

const defaultName = "supabase-mcp"

type Config struct {
	Logger   *slog.Logger
	Registry *tools.Registry

	Name    string
	Version string

	// Transport defaults to stdio.
	Transport mcp.Transport
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Transport == nil {
		c.Transport = &mcp.StdioTransport{}
	}
	return nil
}
