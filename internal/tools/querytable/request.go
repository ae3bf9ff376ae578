package querytable

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/malbeclabs/supabase-mcp/internal/filter"
	"github.com/malbeclabs/supabase-mcp/internal/tools"
)

const (
	DefaultSchema = "public"
	DefaultSelect = "*"
)

type Request struct {
	Schema string             `json:"schema,omitempty" jsonschema:"Database schema name. Defaults to public."`
	Table  string             `json:"table" jsonschema:"Name of the table to query."`
	Select string             `json:"select,omitempty" jsonschema:"Columns to select, comma separated. Defaults to *."`
	Where  []filter.Condition `json:"where,omitempty" jsonschema:"Filter conditions, combined with AND."`
}

// inputSchema builds the advertised schema. Conditions are described by hand so the
// operator enum is part of the contract.
func inputSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[Request](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create query_table input schema: %w", err)
	}

	where, ok := schema.Properties["where"]
	if !ok {
		return nil, fmt.Errorf("query_table input schema is missing where")
	}
	where.Items = conditionSchema()
	return schema, nil
}

func conditionSchema() *jsonschema.Schema {
	ops := make([]any, 0, len(filter.Operators))
	for _, op := range filter.Operators {
		ops = append(ops, string(op))
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"column":   {Type: "string", Description: "Column name."},
			"operator": {Type: "string", Enum: ops, Description: "Comparison operator."},
			"value":    {Description: "Value to compare against. Use null, true or false with is."},
		},
		Required: []string{"column", "operator", "value"},
	}
}

// ParseRequest validates raw arguments and applies defaults.
func ParseRequest(schema *jsonschema.Resolved, args json.RawMessage) (Request, error) {
	var req Request
	if err := tools.DecodeArgs(schema, args, &req); err != nil {
		return Request{}, err
	}
	if err := req.validate(); err != nil {
		return Request{}, fmt.Errorf("%w: %v", tools.ErrInvalidParams, err)
	}
	if req.Schema == "" {
		req.Schema = DefaultSchema
	}
	if strings.TrimSpace(req.Select) == "" {
		req.Select = DefaultSelect
	}
	return req, nil
}

func (r *Request) validate() error {
	if strings.TrimSpace(r.Table) == "" {
		return fmt.Errorf("table is required")
	}
	for i, c := range r.Where {
		if strings.TrimSpace(c.Column) == "" {
			return fmt.Errorf("where[%d]: column is required", i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("where[%d]: unsupported operator %q", i, c.Operator)
		}
	}
	return nil
}
