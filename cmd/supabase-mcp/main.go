package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/supabase-mcp/internal/config"
	"github.com/malbeclabs/supabase-mcp/internal/filter"
	"github.com/malbeclabs/supabase-mcp/internal/metrics"
	"github.com/malbeclabs/supabase-mcp/internal/pgsql"
	"github.com/malbeclabs/supabase-mcp/internal/postgrest"
	"github.com/malbeclabs/supabase-mcp/internal/server"
	"github.com/malbeclabs/supabase-mcp/internal/tools"
	"github.com/malbeclabs/supabase-mcp/internal/tools/gentypes"
	"github.com/malbeclabs/supabase-mcp/internal/tools/querytable"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const dbConnectTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags config.Flags

	rootCmd := &cobra.Command{
		Use:   "supabase-mcp",
		Short: "MCP server exposing Supabase table queries and type generation over stdio",
		Long: `supabase-mcp speaks the Model Context Protocol on stdin/stdout and exposes two tools:
query_table (filtered selects capped at 25 rows) and generate_types (TypeScript types via the
Supabase CLI). SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	flags.Bind(rootCmd.Flags())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("supabase-mcp %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

func run(parent context.Context, flags config.Flags) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := newLogger(flags.Verbose)

	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	metricsServerErrCh := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	source, closeSource, err := newSource(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	if cfg.ProjectRef != "" {
		log.Info("targeting hosted project", "projectRef", cfg.ProjectRef)
	} else {
		log.Info("no project reference in url, type generation will use the local instance")
	}

	queryTool, err := querytable.NewTool(querytable.ToolConfig{
		Logger: log,
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("failed to create query tool: %w", err)
	}

	typesTool, err := gentypes.NewTool(gentypes.ToolConfig{
		Logger:     log,
		Runner:     &gentypes.ExecCommandRunner{Timeout: cfg.TypegenTimeout},
		ProjectRef: cfg.ProjectRef,
		CLIPath:    cfg.CLIPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create generate types tool: %w", err)
	}

	registry, err := tools.NewRegistry(tools.RegistryConfig{
		Logger: log,
		Clock:  clockwork.NewRealClock(),
	})
	if err != nil {
		return fmt.Errorf("failed to create tool registry: %w", err)
	}
	if err := registry.Register(queryTool); err != nil {
		return fmt.Errorf("failed to register query tool: %w", err)
	}
	if err := registry.Register(typesTool); err != nil {
		return fmt.Errorf("failed to register generate types tool: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:   log,
		Registry: registry,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-metricsServerErrCh:
		return err
	}
}

// newSource picks the direct postgres source when a database url is configured and the
// PostgREST API otherwise.
func newSource(ctx context.Context, log *slog.Logger, cfg *config.Config) (filter.Source, func(), error) {
	if cfg.DBURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
		defer cancel()
		db, err := pgsql.Open(connectCtx, cfg.DBURL, log)
		if err != nil {
			return nil, nil, err
		}
		source, err := pgsql.NewSource(pgsql.SourceConfig{Logger: log, DB: db})
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("querying postgres directly")
		return source, func() { db.Close() }, nil
	}

	client, err := postgrest.New(postgrest.Config{
		Logger: log,
		URL:    cfg.URL,
		Key:    cfg.Key,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("querying through the rest api", "url", cfg.URL)
	return client, func() {}, nil
}

// newLogger writes to stderr; stdout carries the protocol.
func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   logLevel,
		NoColor: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
