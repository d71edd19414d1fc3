package magray

import "time"

type (
	// StepKind discriminates the tagged variants an ActionStep can take.
	StepKind string

	// ActionPlan is the DAG the Planner compiles from an Intent. Steps form
	// an acyclic dependency graph with a unique source and sink (real or
	// virtual); the Planner is responsible for the acyclicity invariant,
	// the Executor only ever walks a plan it trusts is valid.
	ActionPlan struct {
		ID        PlanID
		CreatedAt time.Time
		Steps     []*ActionStep
		// ResourceEstimate is the additive sum of every step's expected
		// resource usage, used by the Critic's efficiency, performance and
		// utilization metrics.
		ResourceEstimate ResourceUsage
	}

	// ActionStep is one node of an ActionPlan. Kind selects which
	// Parameters keys are meaningful, mirroring Intent's tagged-variant
	// convention.
	ActionStep struct {
		ID         StepID
		Kind       StepKind
		Parameters map[string]any
		// DependsOn lists the StepIDs that must reach StepCompleted before
		// this step becomes eligible for dispatch.
		DependsOn []StepID
		Retry     RetryPolicy
		// Validation holds JSON-Schema-shaped validation rules applied to
		// the step's resolved arguments before dispatch.
		Validation []byte
		// ExpectedDuration seeds the timeout of each dispatch attempt
		// (ExpectedDuration × ExecutorLimits.SafetyFactor); zero means the
		// Executor applies no per-attempt timeout.
		ExpectedDuration time.Duration
		// RetryHint carries guidance a subsequent planner turn can use to
		// narrow its next action — e.g. restrict to a single tool. The
		// Executor does not populate it.
		RetryHint *RetryHint
	}

	// RetryPolicy configures exponential backoff with jitter for a step.
	RetryPolicy struct {
		MaxAttempts     int
		InitialBackoff  time.Duration
		MaxBackoff      time.Duration
		BackoffFactor   float64
		JitterFraction  float64
	}

	// RetryHint carries structured guidance for recovering from a step
	// failure, grounded on the teacher's planner.RetryHint shape.
	RetryHint struct {
		Tool           ToolName
		Reason         RetryReason
		RestrictToTool bool
	}

	// RetryReason classifies why a retry hint was generated.
	RetryReason string
)

// StepKind variants. Parameters keys follow the same convention as Intent.
const (
	StepToolExecution StepKind = "tool_execution" // Parameters["tool"], Parameters["args"]
	StepDecision      StepKind = "decision"        // Parameters["predicate"]
	StepLoop          StepKind = "loop"            // Parameters["bound"]
	StepUserPrompt    StepKind = "user_prompt"      // Parameters["schema"]
	StepWait          StepKind = "wait"             // Parameters["deadline"]
	StepCompensate    StepKind = "compensate"        // Parameters["for_step"]
)

// RetryReason variants.
const (
	RetryReasonToolUnavailable RetryReason = "tool_unavailable"
	RetryReasonTransient       RetryReason = "transient"
	RetryReasonValidation      RetryReason = "validation"
)

// DefaultRetryPolicy returns a sensible exponential-backoff-with-jitter
// policy for steps that do not declare their own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.2,
	}
}

// StepByID returns the step with the given ID, or nil if absent.
func (p *ActionPlan) StepByID(id StepID) *ActionStep {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Validate checks the two structural invariants spec.md §3 requires of
// every ActionPlan: acyclicity and that every DependsOn entry resolves to
// a step in the plan. It does not check tool resolution or capability
// subset — those are Planner-level checks that need registry/session state
// this package does not have.
func (p *ActionPlan) Validate() error {
	index := make(map[StepID]*ActionStep, len(p.Steps))
	for _, s := range p.Steps {
		index[s.ID] = s
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return NewError(ErrValidationError, "ActionStep %q depends_on unresolved step %q", s.ID, dep).
					WithRetryable(false)
			}
		}
	}
	if cyclePath, ok := findCycle(p.Steps); ok {
		return NewError(ErrValidationError, "ActionPlan contains a dependency cycle: %v", cyclePath).
			WithRetryable(false)
	}
	return nil
}

func findCycle(steps []*ActionStep) ([]StepID, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[StepID]int, len(steps))
	byID := make(map[StepID]*ActionStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		color[s.ID] = white
	}
	var path []StepID
	var visit func(id StepID) ([]StepID, bool)
	visit = func(id StepID) ([]StepID, bool) {
		color[id] = gray
		path = append(path, id)
		s := byID[id]
		if s != nil {
			for _, dep := range s.DependsOn {
				switch color[dep] {
				case gray:
					return append(append([]StepID{}, path...), dep), true
				case white:
					if cyc, found := visit(dep); found {
						return cyc, true
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil, false
	}
	for _, s := range steps {
		if color[s.ID] == white {
			if cyc, found := visit(s.ID); found {
				return cyc, true
			}
		}
	}
	return nil, false
}

// ReadySteps returns the steps whose dependencies are all present in
// completed, excluding steps already present in completed themselves.
func (p *ActionPlan) ReadySteps(completed map[StepID]bool) []*ActionStep {
	var ready []*ActionStep
	for _, s := range p.Steps {
		if completed[s.ID] {
			continue
		}
		allDone := true
		for _, dep := range s.DependsOn {
			if !completed[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, s)
		}
	}
	return ready
}
