package magray

import "time"

// WorkflowState is the coarse lifecycle state of an Orchestrator-owned
// Workflow, per spec.md §4.6's state machine:
//
//	Created → IntentAnalyzed → Planned → Executing →
//	  (Completed | Failed | Cancelled) → Critiqued → Archived
//
// PartiallyCompensated is reached instead of Failed when a Saga rollback
// leaves one or more compensations unapplied.
type WorkflowState string

// WorkflowState variants.
const (
	WorkflowCreated              WorkflowState = "created"
	WorkflowIntentAnalyzed       WorkflowState = "intent_analyzed"
	WorkflowPlanned              WorkflowState = "planned"
	WorkflowExecuting            WorkflowState = "executing"
	WorkflowCompleted            WorkflowState = "completed"
	WorkflowFailed               WorkflowState = "failed"
	WorkflowCancelled            WorkflowState = "cancelled"
	WorkflowPartiallyCompensated WorkflowState = "partially_compensated"
	WorkflowCritiqued            WorkflowState = "critiqued"
	WorkflowArchived             WorkflowState = "archived"
)

// workflowTransitions enumerates the state graph spec.md §4.6 describes;
// Workflow.Transition rejects any edge not listed here.
var workflowTransitions = map[WorkflowState][]WorkflowState{
	WorkflowCreated:              {WorkflowIntentAnalyzed, WorkflowCancelled},
	WorkflowIntentAnalyzed:       {WorkflowPlanned, WorkflowCancelled, WorkflowFailed},
	WorkflowPlanned:              {WorkflowExecuting, WorkflowCancelled, WorkflowFailed},
	WorkflowExecuting:            {WorkflowCompleted, WorkflowFailed, WorkflowCancelled, WorkflowPartiallyCompensated},
	WorkflowCompleted:            {WorkflowCritiqued},
	WorkflowFailed:               {WorkflowCritiqued},
	WorkflowCancelled:            {WorkflowCritiqued},
	WorkflowPartiallyCompensated: {WorkflowCritiqued},
	WorkflowCritiqued:            {WorkflowArchived},
	WorkflowArchived:             {},
}

// Workflow is the Orchestrator-owned record for one Request's journey
// through Intent→Plan→Execute→Critic, per spec.md §3's ownership
// invariant: agents hold only a WorkflowID and look the rest up through
// the Orchestrator.
type Workflow struct {
	ID        WorkflowID
	Request   Request
	State     WorkflowState
	Intent    *Intent
	Plan      *ActionPlan
	Saga      []SagaStep
	Result    *ExecutionResult
	Feedback  *CriticFeedback
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransition reports whether to is a legal next state from w's current
// State.
func (w *Workflow) CanTransition(to WorkflowState) bool {
	for _, candidate := range workflowTransitions[w.State] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition moves w to the given state, returning a ValidationError if
// the edge is not in the state graph.
func (w *Workflow) Transition(to WorkflowState, now time.Time) error {
	if !w.CanTransition(to) {
		return NewError(ErrValidationError, "workflow %q cannot transition %s -> %s", w.ID, w.State, to).
			WithRetryable(false)
	}
	w.State = to
	w.UpdatedAt = now
	return nil
}

// ControlCommand is one of the control commands spec.md §4.5/§6 define
// for a running workflow or its Executor: Pause, Resume, Cancel, Rollback.
type ControlCommand int

// ControlCommand variants.
const (
	ControlPause ControlCommand = iota
	ControlResume
	ControlCancel
	ControlRollback
)

// IsTerminal reports whether State has no further outbound transitions
// other than the Critiqued/Archived tail every workflow eventually takes.
func (w *Workflow) IsTerminal() bool {
	switch w.State {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled, WorkflowPartiallyCompensated, WorkflowArchived:
		return true
	default:
		return false
	}
}
