package magray

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionPlanValidateDetectsCycle(t *testing.T) {
	plan := &ActionPlan{
		ID: "p1",
		Steps: []*ActionStep{
			{ID: "a", DependsOn: []StepID{"b"}},
			{ID: "b", DependsOn: []StepID{"a"}},
		},
	}
	err := plan.Validate()
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrValidationError, merr.Kind)
}

func TestActionPlanValidateDetectsUnresolvedDependency(t *testing.T) {
	plan := &ActionPlan{
		ID: "p1",
		Steps: []*ActionStep{
			{ID: "a", DependsOn: []StepID{"missing"}},
		},
	}
	err := plan.Validate()
	require.Error(t, err)
}

func TestActionPlanValidateAcceptsDAG(t *testing.T) {
	plan := &ActionPlan{
		ID: "p1",
		Steps: []*ActionStep{
			{ID: "a"},
			{ID: "b", DependsOn: []StepID{"a"}},
			{ID: "c", DependsOn: []StepID{"a", "b"}},
		},
	}
	require.NoError(t, plan.Validate())
}

func TestActionPlanReadySteps(t *testing.T) {
	plan := &ActionPlan{
		Steps: []*ActionStep{
			{ID: "a"},
			{ID: "b", DependsOn: []StepID{"a"}},
			{ID: "c", DependsOn: []StepID{"a"}},
		},
	}
	ready := plan.ReadySteps(map[StepID]bool{})
	require.Len(t, ready, 1)
	require.Equal(t, StepID("a"), ready[0].ID)

	ready = plan.ReadySteps(map[StepID]bool{"a": true})
	require.Len(t, ready, 2)
}

func TestResourceUsageAdd(t *testing.T) {
	a := ResourceUsage{CPUMillis: 10, PeakMemoryMB: 5, ToolInvocations: 1}
	b := ResourceUsage{CPUMillis: 20, PeakMemoryMB: 8, ToolInvocations: 2}
	sum := a.Add(b)
	require.Equal(t, int64(30), sum.CPUMillis)
	require.Equal(t, int64(8), sum.PeakMemoryMB)
	require.Equal(t, int64(3), sum.ToolInvocations)
}
