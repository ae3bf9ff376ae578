// Package querytable implements the query_table tool: a filtered select against a single
// table, capped at RowLimit rows.
package querytable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/malbeclabs/supabase-mcp/internal/filter"
)

const (
	Name = "query_table"

	// RowLimit caps every query; callers cannot override it.
	RowLimit = 25

	description = "Query rows from a table in the Supabase database. " +
		"Select columns and narrow results with where conditions (eq, neq, gt, gte, lt, lte, like, ilike, is), " +
		"combined with AND. At most 25 rows are returned."
)

type ToolConfig struct {
	Logger *slog.Logger
	Source filter.Source
}

func (cfg *ToolConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Source == nil {
		return fmt.Errorf("source is required")
	}
	return nil
}

type Tool struct {
	log      *slog.Logger
	source   filter.Source
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

func NewTool(cfg ToolConfig) (*Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate query_table config: %w", err)
	}
	schema, err := inputSchema()
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve query_table input schema: %w", err)
	}
	return &Tool{
		log:      cfg.Logger,
		source:   cfg.Source,
		schema:   schema,
		resolved: resolved,
	}, nil
}

func (t *Tool) Name() string                    { return Name }
func (t *Tool) Description() string             { return description }
func (t *Tool) InputSchema() *jsonschema.Schema { return t.schema }

func (t *Tool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	req, err := ParseRequest(t.resolved, args)
	if err != nil {
		return "", err
	}
	return t.handleQuery(ctx, req)
}

func (t *Tool) handleQuery(ctx context.Context, req Request) (string, error) {
	t.log.Debug("query_table: running query", "schema", req.Schema, "table", req.Table, "conditions", len(req.Where))

	q := t.source.Select(req.Schema, req.Table, req.Select)
	if err := filter.Apply(q, req.Where); err != nil {
		return "", err
	}

	rows, err := q.Execute(ctx, RowLimit)
	if err != nil {
		return "", fmt.Errorf("failed to query %s.%s: %w", req.Schema, req.Table, err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, rows, "", "  "); err != nil {
		return "", fmt.Errorf("failed to format rows: %w", err)
	}
	return out.String(), nil
}
