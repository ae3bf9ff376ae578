// Package pgsql renders filter builder calls into parameterized SQL and runs them against a
// postgres-compatible database.
package pgsql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/malbeclabs/supabase-mcp/internal/filter"
)

var plainColumnRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

type SourceConfig struct {
	Logger *slog.Logger
	DB     DB
}

func (cfg *SourceConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.DB == nil {
		return fmt.Errorf("database is required")
	}
	return nil
}

type Source struct {
	log *slog.Logger
	db  DB
}

func NewSource(cfg SourceConfig) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pgsql source config: %w", err)
	}
	return &Source{log: cfg.Logger, db: cfg.DB}, nil
}

func (s *Source) Select(schema, table, columns string) filter.Query {
	return &Query{
		source:  s,
		schema:  schema,
		table:   table,
		columns: columns,
	}
}

type Query struct {
	source  *Source
	schema  string
	table   string
	columns string
	where   []string
	args    []any
	err     error
}

func (q *Query) Eq(column string, value any)      { q.compare(column, "=", value) }
func (q *Query) Neq(column string, value any)     { q.compare(column, "<>", value) }
func (q *Query) Gt(column string, value any)      { q.compare(column, ">", value) }
func (q *Query) Gte(column string, value any)     { q.compare(column, ">=", value) }
func (q *Query) Lt(column string, value any)      { q.compare(column, "<", value) }
func (q *Query) Lte(column string, value any)     { q.compare(column, "<=", value) }
func (q *Query) Like(column string, pattern any)  { q.compare(column, "LIKE", pattern) }
func (q *Query) ILike(column string, pattern any) { q.compare(column, "ILIKE", pattern) }

func (q *Query) Is(column string, value any) {
	var keyword string
	switch v := value.(type) {
	case nil:
		keyword = "NULL"
	case bool:
		keyword = strings.ToUpper(strconv.FormatBool(v))
	case string:
		switch strings.ToLower(v) {
		case "null", "true", "false", "unknown":
			keyword = strings.ToUpper(v)
		}
	}
	if keyword == "" {
		q.setErr(fmt.Errorf("is operator on %q requires null, true, false or unknown, got %v", column, value))
		return
	}
	q.where = append(q.where, fmt.Sprintf("%s IS %s", quoteIdent(column), keyword))
}

func (q *Query) compare(column, op string, value any) {
	if value == nil {
		q.setErr(fmt.Errorf("%s comparison on %q requires a non-null value, use is", strings.ToLower(op), column))
		return
	}
	q.args = append(q.args, value)
	q.where = append(q.where, fmt.Sprintf("%s %s $%d", quoteIdent(column), op, len(q.args)))
}

func (q *Query) setErr(err error) {
	if q.err == nil {
		q.err = err
	}
}

// SQL renders the statement and its arguments.
func (q *Query) SQL(limit int) (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	cols, err := selectList(q.columns)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(pgx.Identifier{q.schema, q.table}.Sanitize())
	if len(q.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.where, " AND "))
	}
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	}
	return sb.String(), q.args, nil
}

func (q *Query) Execute(ctx context.Context, limit int) (json.RawMessage, error) {
	stmt, args, err := q.SQL(limit)
	if err != nil {
		return nil, err
	}

	q.source.log.Debug("pgsql: executing select", "sql", stmt, "args", len(args))

	rows, err := q.source.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := make([]map[string]any, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return b, nil
}

func selectList(columns string) (string, error) {
	columns = strings.TrimSpace(columns)
	if columns == "" || columns == "*" {
		return "*", nil
	}
	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "*" {
			out = append(out, "*")
			continue
		}
		if !plainColumnRe.MatchString(p) {
			return "", fmt.Errorf("unsupported select expression %q: only * or plain column names are allowed", p)
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ", "), nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
