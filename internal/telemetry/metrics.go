package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the Scheduler and Tool Registry, grounded on
// marcus-qen-legator/internal/metrics/metrics.go's CounterVec/
// HistogramVec-per-concern layout and naming convention (magray_ prefix,
// _total suffix for counters, _seconds suffix for duration histograms).
// Registered against a dedicated Registry rather than the global
// prometheus default so embedders can mount /metrics on their own mux
// without colliding with other instrumented libraries in the process.
var Registry = prometheus.NewRegistry()

var (
	// SchedulerJobsTotal counts scheduled job executions by job name and
	// terminal outcome (ok, error).
	SchedulerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magray_scheduler_jobs_total",
			Help: "Total scheduler job executions by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	// SchedulerJobDurationSeconds is a histogram of scheduled job
	// execution duration by job name.
	SchedulerJobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "magray_scheduler_job_duration_seconds",
			Help:    "Duration of scheduler job executions in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"job"},
	)

	// ToolInvocationsTotal counts tool invocations by tool name and
	// terminal outcome (ok, error, denied, timeout).
	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magray_tool_invocations_total",
			Help: "Total tool invocations by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	// ToolInvocationDurationSeconds is a histogram of tool invocation
	// duration by tool name.
	ToolInvocationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "magray_tool_invocation_duration_seconds",
			Help:    "Duration of tool invocations in seconds.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"tool"},
	)

	// MCPHeartbeatFailuresTotal counts MCP server heartbeat failures by
	// server URL, matching spec.md's HeartbeatFailure transition.
	MCPHeartbeatFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magray_mcp_heartbeat_failures_total",
			Help: "Total MCP server heartbeat failures by server.",
		},
		[]string{"server"},
	)
)

func init() {
	Registry.MustRegister(
		SchedulerJobsTotal,
		SchedulerJobDurationSeconds,
		ToolInvocationsTotal,
		ToolInvocationDurationSeconds,
		MCPHeartbeatFailuresTotal,
	)
}
