// Package gentypes implements the generate_types tool, which shells out to the Supabase CLI
// to generate TypeScript definitions for a database schema.
package gentypes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/malbeclabs/supabase-mcp/internal/metrics"
	"github.com/malbeclabs/supabase-mcp/internal/tools"
)

const (
	Name = "generate_types"

	DefaultCLIPath = "supabase"
	DefaultSchema  = "public"
	DefaultTimeout = 2 * time.Minute

	description = "Generate TypeScript type definitions for a Supabase database schema using the Supabase CLI."

	installHint = "install it with `npm install -g supabase` or `brew install supabase/tap/supabase`, " +
		"see https://supabase.com/docs/guides/cli/getting-started"
)

type Request struct {
	Schema string `json:"schema,omitempty" jsonschema:"Database schema to generate types for. Defaults to public."`
}

type ToolConfig struct {
	Logger *slog.Logger
	Runner CommandRunner

	// ProjectRef targets a hosted project; when empty the local instance is used.
	ProjectRef string
	CLIPath    string
}

func (cfg *ToolConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Runner == nil {
		cfg.Runner = &ExecCommandRunner{Timeout: DefaultTimeout}
	}
	if cfg.CLIPath == "" {
		cfg.CLIPath = DefaultCLIPath
	}
	return nil
}

type Tool struct {
	log      *slog.Logger
	cfg      ToolConfig
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

func NewTool(cfg ToolConfig) (*Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate generate_types config: %w", err)
	}
	schema, err := jsonschema.For[Request](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create generate_types input schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve generate_types input schema: %w", err)
	}
	return &Tool{
		log:      cfg.Logger,
		cfg:      cfg,
		schema:   schema,
		resolved: resolved,
	}, nil
}

func (t *Tool) Name() string                    { return Name }
func (t *Tool) Description() string             { return description }
func (t *Tool) InputSchema() *jsonschema.Schema { return t.schema }

func (t *Tool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req Request
	if err := tools.DecodeArgs(t.resolved, args, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Schema) == "" {
		req.Schema = DefaultSchema
	}
	return t.handleGenerate(ctx, req)
}

// Args returns the CLI arguments used to generate types for schema.
func (t *Tool) Args(schema string) []string {
	args := []string{"gen", "types", "typescript"}
	if t.cfg.ProjectRef != "" {
		args = append(args, "--project-id", t.cfg.ProjectRef)
	} else {
		args = append(args, "--local")
	}
	return append(args, "--schema="+schema)
}

func (t *Tool) handleGenerate(ctx context.Context, req Request) (string, error) {
	if _, _, err := t.cfg.Runner.Run(ctx, t.cfg.CLIPath, []string{"--version"}, nil); err != nil {
		metrics.SubprocessRunsTotal.WithLabelValues("version", "error").Inc()
		t.log.Debug("generate_types: supabase cli probe failed", "path", t.cfg.CLIPath, "error", err)
		return "", fmt.Errorf("%w: %s", tools.ErrCLINotInstalled, installHint)
	}
	metrics.SubprocessRunsTotal.WithLabelValues("version", "success").Inc()

	args := t.Args(req.Schema)
	t.log.Debug("generate_types: running supabase cli", "args", args)

	stdout, stderr, err := t.cfg.Runner.Run(ctx, t.cfg.CLIPath, args, nil)
	if err != nil {
		metrics.SubprocessRunsTotal.WithLabelValues("gen_types", "error").Inc()
		if msg := strings.TrimSpace(stderr); msg != "" {
			return "", fmt.Errorf("failed to generate types: %w: %s", err, msg)
		}
		return "", fmt.Errorf("failed to generate types: %w", err)
	}
	metrics.SubprocessRunsTotal.WithLabelValues("gen_types", "success").Inc()

	if stdout == "" {
		return stderr, nil
	}
	return stdout, nil
}
