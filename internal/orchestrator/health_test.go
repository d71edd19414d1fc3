package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/actor"
	"github.com/magray/magray/internal/tools"
)

func TestHealthAggregatorReportsAliveAgentsAndRegistry(t *testing.T) {
	sup := actor.NewSupervisor(3, time.Millisecond, time.Millisecond)
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = sup.Run(t.Context(), func(ctx context.Context, heartbeat func()) error {
			heartbeat()
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
		close(done)
	}()
	<-started

	agg := NewHealthAggregator(map[string]*actor.Supervisor{"Executor": sup}, tools.New())
	report := agg.Report(time.Now())

	require.Len(t, report.Agents, 1)
	require.Equal(t, "Executor", report.Agents[0].Role)
	require.True(t, report.Agents[0].Health.Alive)
	require.True(t, report.Registry.Reachable)
	sup.Cancel(actor.CancelShutdown)
	<-done
}

func TestHealthReportUnhealthyWhenRegistryUnreachable(t *testing.T) {
	report := HealthReport{Registry: ToolRegistryHealth{Reachable: false}}
	require.False(t, report.Healthy())
}
