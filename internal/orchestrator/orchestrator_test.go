package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/internal/orchestrator/inmem"
	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

type fakeResolver struct{}

func (fakeResolver) Get(name magray.ToolName) (magray.ToolSpec, error) {
	return magray.ToolSpec{Name: name}, nil
}

type fakeDispatcher struct{}

func (fakeDispatcher) Invoke(ctx context.Context, name magray.ToolName, args map[string]any, grants []tools.CapabilityGrant) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

type recordingBus struct {
	events []magray.Event
}

func (b *recordingBus) Publish(ctx context.Context, e magray.Event) error {
	b.events = append(b.events, e)
	return nil
}

func newTestOrchestrator() (*orchestrator.Orchestrator, *recordingBus) {
	bus := &recordingBus{}
	intentAnalyzer := agents.NewIntentAnalyzer(nil, nil)
	planner := agents.NewPlanner(fakeResolver{})
	executor := agents.NewExecutor(fakeDispatcher{}, nil)
	critic := agents.NewCritic()
	saga := orchestrator.NewSaga(nil, nil)
	engine := inmem.New()
	return orchestrator.New(intentAnalyzer, planner, executor, critic, saga, bus, engine), bus
}

func TestOrchestratorRunsRequestToArchived(t *testing.T) {
	o, bus := newTestOrchestrator()
	req := magray.Request{ID: "r1", SessionID: "s1", Utterance: "use tool alpha"}

	wf, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, magray.WorkflowArchived, wf.State)
	require.Equal(t, magray.StatusCompleted, wf.Result.Status)
	require.NotNil(t, wf.Feedback)
	require.NotEmpty(t, bus.events)
}

func TestOrchestratorAskQuestionSkipsExecution(t *testing.T) {
	o, _ := newTestOrchestrator()
	req := magray.Request{ID: "r1", SessionID: "s1", Utterance: "what time is it"}

	wf, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, magray.WorkflowArchived, wf.State)
	require.Equal(t, magray.StatusCompleted, wf.Result.Status)
	require.Empty(t, wf.Plan.Steps)
}
