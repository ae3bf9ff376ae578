// Package postgrest is a minimal client for the Supabase REST API (PostgREST) covering
// filtered, bounded selects.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/supabase-mcp/internal/filter"
)

const (
	restPath              = "/rest/v1/"
	defaultRequestTimeout = 30 * time.Second
	maxErrorBodyBytes     = 64 << 10
)

type Config struct {
	Logger *slog.Logger

	// URL is the project base URL, e.g. https://<ref>.supabase.co.
	URL string
	Key string

	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return nil
}

type Client struct {
	log     *slog.Logger
	cfg     Config
	baseURL string
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate postgrest config: %w", err)
	}
	return &Client{
		log:     cfg.Logger,
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/") + restPath,
	}, nil
}

// Select starts a query against schema.table projecting columns.
func (c *Client) Select(schema, table, columns string) filter.Query {
	return &Query{
		client:  c,
		schema:  schema,
		table:   table,
		columns: columns,
		params:  url.Values{},
	}
}

// reservedParams are query parameters PostgREST reads as request options, so a filter on a
// column with one of these names has to go through a logical "and" tree.
var reservedParams = map[string]bool{
	"select":      true,
	"order":       true,
	"limit":       true,
	"offset":      true,
	"and":         true,
	"or":          true,
	"not":         true,
	"columns":     true,
	"on_conflict": true,
}

// Query accumulates PostgREST horizontal filters.
type Query struct {
	client  *Client
	schema  string
	table   string
	columns string
	params  url.Values
	tree    []string
}

func (q *Query) Eq(column string, value any)      { q.add(column, "eq", value) }
func (q *Query) Neq(column string, value any)     { q.add(column, "neq", value) }
func (q *Query) Gt(column string, value any)      { q.add(column, "gt", value) }
func (q *Query) Gte(column string, value any)     { q.add(column, "gte", value) }
func (q *Query) Lt(column string, value any)      { q.add(column, "lt", value) }
func (q *Query) Lte(column string, value any)     { q.add(column, "lte", value) }
func (q *Query) Like(column string, pattern any)  { q.add(column, "like", pattern) }
func (q *Query) ILike(column string, pattern any) { q.add(column, "ilike", pattern) }
func (q *Query) Is(column string, value any)      { q.add(column, "is", value) }

func (q *Query) add(column, op string, value any) {
	if reservedParams[column] {
		q.tree = append(q.tree, column+"."+op+"."+treeValue(op, value))
		return
	}
	q.params.Add(column, op+"."+FormatValue(value))
}

// treeValue renders a value inside a logical tree, double quoting it when it contains
// characters the tree syntax reserves.
func treeValue(op string, value any) string {
	v := FormatValue(value)
	if op == "is" || !strings.ContainsAny(v, `,.:()" \`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}

// URL returns the request URL for the query with the given row limit.
func (q *Query) URL(limit int) string {
	params := url.Values{}
	for k, v := range q.params {
		params[k] = append([]string(nil), v...)
	}
	if len(q.tree) > 0 {
		params.Set("and", "("+strings.Join(q.tree, ",")+")")
	}
	params.Set("select", q.columns)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return q.client.baseURL + url.PathEscape(q.table) + "?" + params.Encode()
}

func (q *Query) Execute(ctx context.Context, limit int) (json.RawMessage, error) {
	reqURL := q.URL(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", q.client.cfg.Key)
	req.Header.Set("Authorization", "Bearer "+q.client.cfg.Key)
	req.Header.Set("Accept", "application/json")
	if q.schema != "" {
		req.Header.Set("Accept-Profile", q.schema)
	}

	q.client.log.Debug("postgrest: executing select", "schema", q.schema, "table", q.table, "url", reqURL)

	resp, err := q.client.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, parseError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid json response from %s", q.table)
	}
	return json.RawMessage(body), nil
}

// FormatValue renders v as a PostgREST filter literal.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
