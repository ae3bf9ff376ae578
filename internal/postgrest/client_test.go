package postgrest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		URL:    srv.URL,
		Key:    "service-key",
	})
	require.NoError(t, err)
	return client
}

func TestPostgREST_Config_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "missing logger", modify: func(c *Config) { c.Logger = nil }, wantErr: "logger is required"},
		{name: "missing url", modify: func(c *Config) { c.URL = "" }, wantErr: "url is required"},
		{name: "bad scheme", modify: func(c *Config) { c.URL = "ftp://example.com" }, wantErr: "invalid url scheme"},
		{name: "missing key", modify: func(c *Config) { c.Key = "" }, wantErr: "key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Config{
				Logger: slog.Default(),
				URL:    "https://abc.supabase.co",
				Key:    "key",
			}
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg.HTTPClient)
		})
	}
}

func TestPostgREST_Query_Execute(t *testing.T) {
	t.Parallel()

	t.Run("sends filters, limit, schema and auth headers", func(t *testing.T) {
		t.Parallel()

		reqCh := make(chan *http.Request, 1)
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			reqCh <- r.Clone(context.Background())
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id":1,"is_active":true}]`))
		})

		q := client.Select("app", "users", "id,is_active")
		q.Eq("is_active", true)
		q.Gte("age", float64(21))
		q.ILike("name", "%ann%")
		q.Is("deleted_at", nil)

		rows, err := q.Execute(context.Background(), 25)
		require.NoError(t, err)
		require.JSONEq(t, `[{"id":1,"is_active":true}]`, string(rows))

		got := <-reqCh
		require.Equal(t, "/rest/v1/users", got.URL.Path)
		query := got.URL.Query()
		require.Equal(t, "id,is_active", query.Get("select"))
		require.Equal(t, "25", query.Get("limit"))
		require.Equal(t, "eq.true", query.Get("is_active"))
		require.Equal(t, "gte.21", query.Get("age"))
		require.Equal(t, "ilike.%ann%", query.Get("name"))
		require.Equal(t, "is.null", query.Get("deleted_at"))
		require.Equal(t, "service-key", got.Header.Get("apikey"))
		require.Equal(t, "Bearer service-key", got.Header.Get("Authorization"))
		require.Equal(t, "app", got.Header.Get("Accept-Profile"))
	})

	t.Run("filters on reserved column names go through an and tree", func(t *testing.T) {
		t.Parallel()

		queryCh := make(chan map[string][]string, 1)
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			queryCh <- r.URL.Query()
			w.Write([]byte(`[]`))
		})

		q := client.Select("public", "settings", "*")
		q.Eq("limit", float64(5))
		q.Eq("select", `a,"b"`)
		q.Is("order", nil)
		q.Eq("name", "plain")

		_, err := q.Execute(context.Background(), 25)
		require.NoError(t, err)

		query := <-queryCh
		require.Equal(t, []string{"*"}, query["select"])
		require.Equal(t, []string{"25"}, query["limit"])
		require.Equal(t, []string{"eq.plain"}, query["name"])
		require.Equal(t, []string{`(limit.eq.5,select.eq."a,\"b\"",order.is.null)`}, query["and"])
	})

	t.Run("keeps multiple filters on the same column", func(t *testing.T) {
		t.Parallel()

		valuesCh := make(chan []string, 1)
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			valuesCh <- r.URL.Query()["age"]
			w.Write([]byte(`[]`))
		})

		q := client.Select("public", "users", "*")
		q.Gt("age", 18)
		q.Lt("age", 65)
		_, err := q.Execute(context.Background(), 25)
		require.NoError(t, err)
		require.Equal(t, []string{"gt.18", "lt.65"}, <-valuesCh)
	})

	t.Run("returns postgrest error message", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"code":    "42P01",
				"message": `relation "public.missing" does not exist`,
				"details": nil,
				"hint":    nil,
			})
		})

		_, err := client.Select("public", "missing", "*").Execute(context.Background(), 25)
		require.Error(t, err)
		var pgErr *Error
		require.ErrorAs(t, err, &pgErr)
		require.Equal(t, http.StatusNotFound, pgErr.StatusCode)
		require.Equal(t, "42P01", pgErr.Code)
		require.Equal(t, `relation "public.missing" does not exist`, err.Error())
	})

	t.Run("falls back to raw body for non-json errors", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream unavailable\n"))
		})

		_, err := client.Select("public", "users", "*").Execute(context.Background(), 25)
		require.EqualError(t, err, "upstream unavailable")
	})

	t.Run("rejects invalid json bodies", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		})

		_, err := client.Select("public", "users", "*").Execute(context.Background(), 25)
		require.ErrorContains(t, err, "invalid json response")
	})
}

func TestPostgREST_FormatValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{"plain text", "plain text"},
		{float64(3), "3"},
		{float64(2.5), "2.5"},
		{float64(1e21), "1000000000000000000000"},
		{42, "42"},
		{int64(-7), "-7"},
		{json.Number("12.0"), "12.0"},
		{[]any{"a", float64(1)}, `["a",1]`},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, FormatValue(tt.in), "%#v", tt.in)
	}
}
