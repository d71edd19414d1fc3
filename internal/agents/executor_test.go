package agents

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

type fakeDispatcher struct {
	invoke func(ctx context.Context, name magray.ToolName, args map[string]any) (map[string]any, error)
}

func (f fakeDispatcher) Invoke(ctx context.Context, name magray.ToolName, args map[string]any, grants []tools.CapabilityGrant) (map[string]any, error) {
	return f.invoke(ctx, name, args)
}

func toolStep(tool string) *magray.ActionStep {
	return &magray.ActionStep{
		ID:         magray.StepID(magray.NewID()),
		Kind:       magray.StepToolExecution,
		Parameters: map[string]any{"tool": tool},
		Retry:      magray.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}
}

func TestExecutorCompletesLinearPlan(t *testing.T) {
	a := toolStep("a")
	b := toolStep("b")
	b.DependsOn = []magray.StepID{a.ID}
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{a, b}}

	var order []string
	d := fakeDispatcher{invoke: func(ctx context.Context, name magray.ToolName, args map[string]any) (map[string]any, error) {
		order = append(order, string(name))
		return map[string]any{"ok": true}, nil
	}}
	e := NewExecutor(d, nil)
	result := e.Execute(context.Background(), plan)

	require.Equal(t, magray.StatusCompleted, result.Status)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestExecutorCascadesFailureAndCompensates(t *testing.T) {
	a := toolStep("a")
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{a}}

	d := fakeDispatcher{invoke: func(ctx context.Context, name magray.ToolName, args map[string]any) (map[string]any, error) {
		return nil, magray.NewError(magray.ErrValidationError, "bad args")
	}}
	var compensated bool
	comp := compensatorFunc(func(ctx context.Context, p *magray.ActionPlan, executed []magray.StepID) error {
		compensated = true
		return nil
	})
	e := NewExecutor(d, comp)
	result := e.Execute(context.Background(), plan)

	require.Equal(t, magray.StatusFailed, result.Status)
	require.True(t, compensated)
}

func TestExecutorRetriesRetryableFailures(t *testing.T) {
	a := toolStep("a")
	a.Retry = magray.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1}
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{a}}

	var attempts int32
	d := fakeDispatcher{invoke: func(ctx context.Context, name magray.ToolName, args map[string]any) (map[string]any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, magray.NewError(magray.ErrNetworkError, "transient")
		}
		return map[string]any{"ok": true}, nil
	}}
	e := NewExecutor(d, nil)
	result := e.Execute(context.Background(), plan)

	require.Equal(t, magray.StatusCompleted, result.Status)
	require.EqualValues(t, 3, attempts)
}

func TestExecutorPauseBlocksDispatchUntilResume(t *testing.T) {
	a := toolStep("a")
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{a}}

	dispatched := make(chan struct{}, 1)
	d := fakeDispatcher{invoke: func(ctx context.Context, name magray.ToolName, args map[string]any) (map[string]any, error) {
		dispatched <- struct{}{}
		return map[string]any{}, nil
	}}
	e := NewExecutor(d, nil)
	e.Pause()

	done := make(chan magray.ExecutionResult, 1)
	go func() { done <- e.Execute(context.Background(), plan) }()

	select {
	case <-dispatched:
		t.Fatal("step dispatched while paused")
	case <-time.After(30 * time.Millisecond):
	}

	e.Resume()
	select {
	case r := <-done:
		require.Equal(t, magray.StatusCompleted, r.Status)
	case <-time.After(time.Second):
		t.Fatal("executor never finished after resume")
	}
}

func TestExecutorControlCancelStopsExecution(t *testing.T) {
	a := toolStep("a")
	b := toolStep("b")
	b.DependsOn = []magray.StepID{a.ID}
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{a, b}}

	blockA := make(chan struct{})
	d := fakeDispatcher{invoke: func(ctx context.Context, name magray.ToolName, args map[string]any) (map[string]any, error) {
		if name == "a" {
			<-blockA
		}
		return map[string]any{}, nil
	}}
	e := NewExecutor(d, nil)

	done := make(chan magray.ExecutionResult, 1)
	go func() { done <- e.Execute(context.Background(), plan) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Control(magray.ControlCancel))
	close(blockA)

	select {
	case r := <-done:
		require.Equal(t, magray.StatusCancelled, r.Status)
	case <-time.After(time.Second):
		t.Fatal("executor never cancelled")
	}
}

func TestExecutorControlRollbackRejected(t *testing.T) {
	e := NewExecutor(fakeDispatcher{}, nil)
	require.Error(t, e.Control(magray.ControlRollback))
}

type compensatorFunc func(ctx context.Context, plan *magray.ActionPlan, executed []magray.StepID) error

func (f compensatorFunc) Compensate(ctx context.Context, plan *magray.ActionPlan, executed []magray.StepID) error {
	return f(ctx, plan, executed)
}
