// Package magray defines the core data model shared by every MAGRAY
// component: requests, intents, plans, execution results, critic feedback,
// tool specs, capabilities, policy rules, memory records, saga steps, and
// the typed error taxonomy. Components depend on these types instead of on
// each other's internals, matching the teacher's arena-of-ids style: owners
// hold the concrete struct, everyone else holds an Ident and looks it up.
package magray

import "github.com/google/uuid"

type (
	// RequestID identifies a Request for the lifetime of its workflow.
	RequestID string
	// SessionID identifies a logical conversation/session across requests.
	SessionID string
	// IntentID identifies an Intent produced by the IntentAnalyzer.
	IntentID string
	// PlanID identifies an ActionPlan produced by the Planner.
	PlanID string
	// StepID identifies a single ActionStep within a plan.
	StepID string
	// WorkflowID identifies an Orchestrator-owned Workflow instance.
	WorkflowID string
	// ToolName is the fully qualified identifier of a registered tool.
	ToolName string
	// JobID identifies a Scheduler job.
	JobID string
)

// NewID returns a fresh random identifier suitable for any of the Ident
// types above. Callers convert the result to the concrete type they need.
func NewID() string {
	return uuid.NewString()
}
