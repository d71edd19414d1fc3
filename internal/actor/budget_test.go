package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBudgetAddCPUTripsOnExceed(t *testing.T) {
	b := NewBudget(100, 0, 0, 0)
	var tripped string
	b.OnExceed(func(dimension string) { tripped = dimension })

	require.False(t, b.AddCPU(50*time.Millisecond))
	require.True(t, b.AddCPU(60*time.Millisecond))
	require.Equal(t, "cpu", tripped)
}

func TestBudgetOutstandingToolsEnforced(t *testing.T) {
	b := NewBudget(0, 0, 0, 1)
	require.NoError(t, b.BeginTool())
	require.Error(t, b.BeginTool())
	b.EndTool()
	require.NoError(t, b.BeginTool())
}

func TestBudgetWallExceeded(t *testing.T) {
	b := NewBudget(0, 5, 0, 0)
	require.False(t, b.WallExceeded())
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.WallExceeded())
}

func TestBudgetUsageSnapshot(t *testing.T) {
	b := NewBudget(0, 0, 0, 0)
	b.AddCPU(20 * time.Millisecond)
	b.RecordMemory(128)
	usage := b.Usage()
	require.Equal(t, int64(20), usage.CPUMillis)
	require.Equal(t, int64(128), usage.PeakMemoryMB)
}
