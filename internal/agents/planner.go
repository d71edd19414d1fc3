package agents

import (
	"time"

	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

// PlannerLimits bounds what Planner will compile into a single plan, per
// spec.md §4.5: "plans over max_steps or max_parallel are rejected with
// PlanTooLarge".
type PlannerLimits struct {
	MaxSteps    int
	MaxParallel int
}

// DefaultPlannerLimits is a conservative default used when the caller does
// not supply its own PlannerLimits.
var DefaultPlannerLimits = PlannerLimits{MaxSteps: 64, MaxParallel: 8}

// ToolResolver looks up a registered tool's spec, the interface the
// Planner needs from internal/tools.Registry.
type ToolResolver interface {
	Get(name magray.ToolName) (magray.ToolSpec, error)
}

var _ ToolResolver = (*tools.Registry)(nil)

// Planner turns an Intent into an ActionPlan, per spec.md §4.5:
//  1. every step's tool name resolves in the Tool Registry
//  2. required capabilities are a subset of the session's grants, or the
//     step carries a UserPrompt for elevation
//  3. cycles are rejected
//  4. per-step retry policy, validation rules, and expected duration are set
//  5. plans over max_steps/max_parallel are rejected with PlanTooLarge
type Planner struct {
	Resolver ToolResolver
	Limits   PlannerLimits
}

// NewPlanner constructs a Planner against the given tool resolver.
func NewPlanner(resolver ToolResolver) *Planner {
	return &Planner{Resolver: resolver, Limits: DefaultPlannerLimits}
}

// StepSpec is one planner-level description of a step to compile, prior to
// resolution against the Tool Registry. The IntentAnalyzer's Parameters
// (by convention) feed into a sequence of StepSpecs upstream of Plan; what
// shape that translation takes is intent-kind-specific and out of scope
// for Planner itself, which only compiles already-decided steps into a
// validated DAG.
type StepSpec struct {
	ID         magray.StepID
	Tool       magray.ToolName
	Kind       magray.StepKind
	Parameters map[string]any
	DependsOn  []magray.StepID
	Compensate *StepSpec
	// ExpectedDuration seeds the step's timeout multiplier; zero uses a
	// registry-provided default based on the tool's declared limits.
	ExpectedDuration time.Duration
}

// Plan compiles steps into a validated ActionPlan against the grant set
// sessionGrants. Capability shortfalls are resolved by inserting a
// StepUserPrompt elevation step immediately before the offending step,
// rather than failing outright, per spec.md §4.5 point 2.
func (p *Planner) Plan(steps []StepSpec, sessionGrants []tools.CapabilityGrant) (*magray.ActionPlan, error) {
	limits := p.Limits
	if limits.MaxSteps <= 0 {
		limits = DefaultPlannerLimits
	}
	if len(steps) > limits.MaxSteps {
		return nil, magray.NewError(magray.ErrValidationError, "plan has %d steps, exceeds max_steps %d (PlanTooLarge)", len(steps), limits.MaxSteps)
	}

	plan := &magray.ActionPlan{ID: magray.PlanID(magray.NewID()), CreatedAt: time.Now()}
	var estimate magray.ResourceUsage

	for _, s := range steps {
		spec, err := p.Resolver.Get(s.Tool)
		if err != nil {
			return nil, err
		}

		dependsOn := s.DependsOn
		if err := tools.CheckCapabilities(spec, sessionGrants); err != nil {
			promptStep := &magray.ActionStep{
				ID:         magray.StepID(magray.NewID()),
				Kind:       magray.StepUserPrompt,
				Parameters: map[string]any{"reason": err.Error(), "tool": string(s.Tool)},
				Retry:      magray.DefaultRetryPolicy(),
			}
			plan.Steps = append(plan.Steps, promptStep)
			dependsOn = append(dependsOn, promptStep.ID)
		}

		params := withTool(s.Parameters, s.Tool)
		step := &magray.ActionStep{
			ID:               s.ID,
			Kind:             s.Kind,
			Parameters:       params,
			DependsOn:        dependsOn,
			Retry:            magray.DefaultRetryPolicy(),
			ExpectedDuration: expectedDuration(s, spec),
		}
		if step.ID == "" {
			step.ID = magray.StepID(magray.NewID())
		}
		plan.Steps = append(plan.Steps, step)

		if s.Compensate != nil {
			compParams := withTool(s.Compensate.Parameters, s.Compensate.Tool)
			compParams["for_step"] = string(step.ID)
			compStep := &magray.ActionStep{
				ID:         magray.StepID(magray.NewID()),
				Kind:       magray.StepCompensate,
				Parameters: compParams,
				Retry:      magray.DefaultRetryPolicy(),
			}
			plan.Steps = append(plan.Steps, compStep)
		}

		estimate.CPUMillis += spec.Limits.MaxCPUMillis
		estimate.WallMillis = maxI64(estimate.WallMillis, spec.Limits.MaxWallMillis)
		estimate.PeakMemoryMB = maxI64(estimate.PeakMemoryMB, spec.Limits.MaxMemoryMB)
	}
	plan.ResourceEstimate = estimate

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if maxParallelWidth(plan) > limits.MaxParallel {
		return nil, magray.NewError(magray.ErrValidationError, "plan's widest ready set exceeds max_parallel %d (PlanTooLarge)", limits.MaxParallel)
	}
	return plan, nil
}

func withTool(params map[string]any, tool magray.ToolName) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["tool"] = string(tool)
	return out
}

func expectedDuration(s StepSpec, spec magray.ToolSpec) time.Duration {
	if s.ExpectedDuration > 0 {
		return s.ExpectedDuration
	}
	if spec.Limits.MaxWallMillis > 0 {
		return time.Duration(spec.Limits.MaxWallMillis) * time.Millisecond
	}
	return 30 * time.Second
}

// maxParallelWidth computes the largest ready set the plan could present
// to the Executor at once, by simulating completion of the DAG layer by
// layer.
func maxParallelWidth(plan *magray.ActionPlan) int {
	completed := make(map[magray.StepID]bool, len(plan.Steps))
	widest := 0
	for len(completed) < len(plan.Steps) {
		ready := plan.ReadySteps(completed)
		if len(ready) == 0 {
			break
		}
		if len(ready) > widest {
			widest = len(ready)
		}
		for _, s := range ready {
			completed[s.ID] = true
		}
	}
	return widest
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
