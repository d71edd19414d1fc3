package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/pkg/magray"
)

func TestEngineRunsWorkflowToCompletion(t *testing.T) {
	e := New()
	run := func(ctx orchestrator.WorkflowContext, req magray.Request) (magray.ExecutionResult, error) {
		return magray.ExecutionResult{PlanID: "p1", Status: magray.StatusCompleted}, nil
	}

	h, err := e.Start(context.Background(), orchestrator.StartRequest{WorkflowID: "w1", Run: run})
	require.NoError(t, err)

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, magray.StatusCompleted, result.Status)
}

func TestEngineDeliversSignalsToRunningWorkflow(t *testing.T) {
	e := New()
	received := make(chan magray.ControlCommand, 1)
	run := func(ctx orchestrator.WorkflowContext, req magray.Request) (magray.ExecutionResult, error) {
		select {
		case sig := <-ctx.Signals():
			received <- sig.Command
		case <-time.After(time.Second):
			t.Error("never received signal")
		}
		return magray.ExecutionResult{Status: magray.StatusCompleted}, nil
	}

	h, err := e.Start(context.Background(), orchestrator.StartRequest{WorkflowID: "w1", Run: run})
	require.NoError(t, err)
	require.NoError(t, h.Signal(context.Background(), magray.ControlPause))

	select {
	case cmd := <-received:
		require.Equal(t, magray.ControlPause, cmd)
	case <-time.After(time.Second):
		t.Fatal("signal never delivered")
	}

	_, err = h.Wait(context.Background())
	require.NoError(t, err)
}

func TestEngineCancelStopsContext(t *testing.T) {
	e := New()
	run := func(ctx orchestrator.WorkflowContext, req magray.Request) (magray.ExecutionResult, error) {
		<-ctx.Context().Done()
		return magray.ExecutionResult{Status: magray.StatusCancelled}, ctx.Context().Err()
	}

	h, err := e.Start(context.Background(), orchestrator.StartRequest{WorkflowID: "w1", Run: run})
	require.NoError(t, err)

	require.NoError(t, h.Cancel(context.Background()))

	result, err := h.Wait(context.Background())
	require.Error(t, err)
	require.Equal(t, magray.StatusCancelled, result.Status)
}

func TestEngineWaitRespectsCallerContext(t *testing.T) {
	e := New()
	block := make(chan struct{})
	run := func(ctx orchestrator.WorkflowContext, req magray.Request) (magray.ExecutionResult, error) {
		<-block
		return magray.ExecutionResult{Status: magray.StatusCompleted}, nil
	}

	h, err := e.Start(context.Background(), orchestrator.StartRequest{WorkflowID: "w1", Run: run})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
