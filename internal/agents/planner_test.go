package agents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

type fakeResolver map[magray.ToolName]magray.ToolSpec

func (f fakeResolver) Get(name magray.ToolName) (magray.ToolSpec, error) {
	spec, ok := f[name]
	if !ok {
		return magray.ToolSpec{}, magray.NewError(magray.ErrToolNotFound, "tool %q not registered", name)
	}
	return spec, nil
}

func TestPlannerCompilesSimplePlan(t *testing.T) {
	resolver := fakeResolver{
		"file.list": {Name: "file.list", Limits: magray.ResourceLimits{MaxCPUMillis: 10, MaxWallMillis: 100, MaxMemoryMB: 16}},
	}
	p := NewPlanner(resolver)

	plan, err := p.Plan([]StepSpec{
		{Tool: "file.list", Kind: magray.StepToolExecution, Parameters: map[string]any{"path": "/tmp"}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, "file.list", plan.Steps[0].Parameters["tool"])
}

func TestPlannerRejectsUnresolvedTool(t *testing.T) {
	p := NewPlanner(fakeResolver{})
	_, err := p.Plan([]StepSpec{{Tool: "nope", Kind: magray.StepToolExecution}}, nil)
	require.True(t, magray.KindError(magray.ErrToolNotFound).Is(err))
}

func TestPlannerInsertsUserPromptForMissingCapability(t *testing.T) {
	resolver := fakeResolver{
		"shell.exec": {Name: "shell.exec", Capabilities: []magray.Capability{{Kind: magray.CapShellExec, Scope: "rm"}}, Limits: magray.ResourceLimits{MaxCPUMillis: 1, MaxWallMillis: 1, MaxMemoryMB: 1}},
	}
	p := NewPlanner(resolver)

	plan, err := p.Plan([]StepSpec{{Tool: "shell.exec", Kind: magray.StepToolExecution}}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	require.Equal(t, magray.StepUserPrompt, plan.Steps[0].Kind)
	require.Contains(t, plan.Steps[1].DependsOn, plan.Steps[0].ID)
}

func TestPlannerAllowsGrantedCapability(t *testing.T) {
	resolver := fakeResolver{
		"web.fetch": {Name: "web.fetch", Capabilities: []magray.Capability{{Kind: magray.CapNetDomain, Scope: "example.com"}}, Limits: magray.ResourceLimits{MaxCPUMillis: 1, MaxWallMillis: 1, MaxMemoryMB: 1}},
	}
	p := NewPlanner(resolver)

	plan, err := p.Plan([]StepSpec{{Tool: "web.fetch", Kind: magray.StepToolExecution}}, []tools.CapabilityGrant{
		{Kind: magray.CapNetDomain, Scope: "example.com"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
}

func TestPlannerRejectsPlanTooLarge(t *testing.T) {
	resolver := fakeResolver{"t": {Name: "t", Limits: magray.ResourceLimits{MaxCPUMillis: 1, MaxWallMillis: 1, MaxMemoryMB: 1}}}
	p := NewPlanner(resolver)
	p.Limits = PlannerLimits{MaxSteps: 2, MaxParallel: 8}

	_, err := p.Plan([]StepSpec{
		{Tool: "t", Kind: magray.StepToolExecution},
		{Tool: "t", Kind: magray.StepToolExecution},
		{Tool: "t", Kind: magray.StepToolExecution},
	}, nil)
	require.Error(t, err)
}

func TestPlannerCompensationStepCreated(t *testing.T) {
	resolver := fakeResolver{
		"db.write":    {Name: "db.write", Limits: magray.ResourceLimits{MaxCPUMillis: 1, MaxWallMillis: 1, MaxMemoryMB: 1}},
		"db.rollback": {Name: "db.rollback", Limits: magray.ResourceLimits{MaxCPUMillis: 1, MaxWallMillis: 1, MaxMemoryMB: 1}},
	}
	p := NewPlanner(resolver)

	plan, err := p.Plan([]StepSpec{
		{Tool: "db.write", Kind: magray.StepToolExecution, Compensate: &StepSpec{Tool: "db.rollback", Kind: magray.StepCompensate}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	require.Equal(t, magray.StepCompensate, plan.Steps[1].Kind)
}
