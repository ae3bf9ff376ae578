package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/supabase-mcp/internal/postgrest"
	"github.com/malbeclabs/supabase-mcp/internal/tools"
	"github.com/malbeclabs/supabase-mcp/internal/tools/gentypes"
	"github.com/malbeclabs/supabase-mcp/internal/tools/querytable"
)

type missingCLIRunner struct {
	calls atomic.Int32
}

func (r *missingCLIRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (string, string, error) {
	r.calls.Add(1)
	return "", "", &os.PathError{Op: "exec", Path: name, Err: os.ErrNotExist}
}

type fixture struct {
	requests atomic.Int32
	runner   *missingCLIRunner
	session  *mcp.ClientSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	f := &fixture{runner: &missingCLIRunner{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Write([]byte(`[{"id":1,"is_active":true},{"id":3,"is_active":true}]`))
	}))
	t.Cleanup(srv.Close)

	client, err := postgrest.New(postgrest.Config{Logger: log, URL: srv.URL, Key: "key"})
	require.NoError(t, err)

	queryTool, err := querytable.NewTool(querytable.ToolConfig{Logger: log, Source: client})
	require.NoError(t, err)
	typesTool, err := gentypes.NewTool(gentypes.ToolConfig{Logger: log, Runner: f.runner})
	require.NoError(t, err)

	registry, err := tools.NewRegistry(tools.RegistryConfig{Logger: log})
	require.NoError(t, err)
	require.NoError(t, registry.Register(queryTool))
	require.NoError(t, registry.Register(typesTool))

	s, err := New(Config{Logger: log, Registry: registry, Version: "test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcpServer.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	f.session, err = mcpClient.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.session.Close() })

	return f
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_Config_Validate(t *testing.T) {
	t.Parallel()

	registry, err := tools.NewRegistry(tools.RegistryConfig{Logger: slog.Default()})
	require.NoError(t, err)

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "missing logger", modify: func(c *Config) { c.Logger = nil }, wantErr: true},
		{name: "missing registry", modify: func(c *Config) { c.Registry = nil }, wantErr: true},
		{name: "sets defaults", modify: func(c *Config) { c.Name = ""; c.Version = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Config{Logger: slog.Default(), Registry: registry}
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "supabase-mcp", cfg.Name)
			require.NotEmpty(t, cfg.Version)
			require.IsType(t, &mcp.StdioTransport{}, cfg.Transport)
		})
	}
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{"generate_types", "query_table"}, names)

	for _, tool := range res.Tools {
		if tool.Name != "query_table" {
			continue
		}
		raw, err := json.Marshal(tool.InputSchema)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"ilike"`)
		require.Contains(t, string(raw), `"table"`)
	}
}

func TestServer_CallTool(t *testing.T) {
	t.Parallel()

	t.Run("query_table returns pretty json rows", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "query_table",
			Arguments: map[string]any{
				"table": "users",
				"where": []any{map[string]any{"column": "is_active", "operator": "eq", "value": true}},
			},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		text := textOf(t, res)
		require.Contains(t, text, "\n  {\n")
		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &rows))
		require.Len(t, rows, 2)
		require.Equal(t, int32(1), f.requests.Load())
	})

	t.Run("query_table without table is an invalid params error result", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "query_table",
			Arguments: map[string]any{"schema": "public"},
		})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Contains(t, textOf(t, res), "invalid parameters")
		require.Zero(t, f.requests.Load())
	})

	t.Run("generate_types without cli reports installation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "generate_types",
			Arguments: map[string]any{},
		})
		require.NoError(t, err)
		require.True(t, res.IsError)
		require.Contains(t, textOf(t, res), "install")
		require.Equal(t, int32(1), f.runner.calls.Load())
	})

	t.Run("unknown tool is a protocol error", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "drop_everything",
			Arguments: map[string]any{},
		})
		require.Error(t, err)
		var rpcErr *jsonrpc.Error
		require.ErrorAs(t, err, &rpcErr)
		require.Equal(t, int64(jsonrpc.CodeMethodNotFound), rpcErr.Code)
		require.Contains(t, rpcErr.Message, "method not found")
		require.Contains(t, rpcErr.Message, "drop_everything")
		require.Zero(t, f.requests.Load())
		require.Zero(t, f.runner.calls.Load())
	})
}
