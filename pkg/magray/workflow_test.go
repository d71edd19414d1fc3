package magray

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkflowTransitionsFollowStateGraph(t *testing.T) {
	w := &Workflow{ID: "w1", State: WorkflowCreated}
	require.NoError(t, w.Transition(WorkflowIntentAnalyzed, time.Now()))
	require.NoError(t, w.Transition(WorkflowPlanned, time.Now()))
	require.NoError(t, w.Transition(WorkflowExecuting, time.Now()))
	require.NoError(t, w.Transition(WorkflowCompleted, time.Now()))
	require.NoError(t, w.Transition(WorkflowCritiqued, time.Now()))
	require.NoError(t, w.Transition(WorkflowArchived, time.Now()))
}

func TestWorkflowRejectsInvalidTransition(t *testing.T) {
	w := &Workflow{ID: "w1", State: WorkflowCreated}
	err := w.Transition(WorkflowExecuting, time.Now())
	require.Error(t, err)
	require.Equal(t, WorkflowCreated, w.State)
}

func TestWorkflowExecutingCanReachPartiallyCompensated(t *testing.T) {
	w := &Workflow{ID: "w1", State: WorkflowExecuting}
	require.NoError(t, w.Transition(WorkflowPartiallyCompensated, time.Now()))
	require.True(t, w.IsTerminal())
}

func TestWorkflowIsTerminal(t *testing.T) {
	require.True(t, (&Workflow{State: WorkflowArchived}).IsTerminal())
	require.False(t, (&Workflow{State: WorkflowExecuting}).IsTerminal())
}
