package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/telemetry"
)

func TestSchedulerJobsTotalIncrementsByJobAndOutcome(t *testing.T) {
	telemetry.SchedulerJobsTotal.Reset()
	telemetry.SchedulerJobsTotal.WithLabelValues("promote-memory", "ok").Inc()
	require.InDelta(t, 1, testutil.ToFloat64(telemetry.SchedulerJobsTotal.WithLabelValues("promote-memory", "ok")), 0.0001)
}

func TestToolInvocationsTotalIsRegistered(t *testing.T) {
	count, err := testutil.GatherAndCount(telemetry.Registry, "magray_tool_invocations_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 0)
}
