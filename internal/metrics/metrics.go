package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supabase_mcp_build_info",
			Help: "Build information of the Supabase MCP server",
		},
		[]string{"version", "commit", "date"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supabase_mcp_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supabase_mcp_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
		[]string{"tool_name"},
	)

	SubprocessRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supabase_mcp_subprocess_runs_total",
			Help: "Total number of supabase cli invocations",
		},
		[]string{"command", "status"},
	)
)
