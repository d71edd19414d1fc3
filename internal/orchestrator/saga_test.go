package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/pkg/magray"
)

type fakeCompensator struct {
	calls []magray.StepID
	fail  map[magray.StepID]bool
}

func (f *fakeCompensator) Compensate(ctx context.Context, plan *magray.ActionPlan, stepID magray.StepID) error {
	f.calls = append(f.calls, stepID)
	if f.fail[stepID] {
		return magray.NewError(magray.ErrInternal, "boom")
	}
	return nil
}

func TestFileSagaLogAppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saga.log")
	log, err := NewFileSagaLog(path)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(context.Background(), SagaLogEntry{WorkflowID: "w1", StepID: "s1", State: magray.SagaExecuted}))
	require.NoError(t, log.Append(context.Background(), SagaLogEntry{WorkflowID: "w1", StepID: "s1", State: magray.SagaCompensated}))
	require.NoError(t, log.Append(context.Background(), SagaLogEntry{WorkflowID: "w2", StepID: "s2", State: magray.SagaExecuted}))

	entries, err := log.List(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, magray.SagaExecuted, entries[0].State)
	require.Equal(t, magray.SagaCompensated, entries[1].State)
}

func TestSagaCompensatesInReverseOrder(t *testing.T) {
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{{ID: "s1"}, {ID: "s2"}}}
	comp := &fakeCompensator{}
	saga := NewSaga(nil, comp)

	c1 := magray.StepID("c1")
	c2 := magray.StepID("c2")
	require.NoError(t, saga.RecordExecuted(context.Background(), magray.WorkflowID(plan.ID), plan.Steps[0], &c1))
	require.NoError(t, saga.RecordExecuted(context.Background(), magray.WorkflowID(plan.ID), plan.Steps[1], &c2))

	err := saga.Compensate(context.Background(), plan, []magray.StepID{"s1", "s2"})
	require.NoError(t, err)
	require.Equal(t, []magray.StepID{"s2", "s1"}, comp.calls)
}

func TestSagaReportsStepsWithoutCompensation(t *testing.T) {
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{{ID: "s1"}}}
	comp := &fakeCompensator{}
	saga := NewSaga(nil, comp)
	require.NoError(t, saga.RecordExecuted(context.Background(), magray.WorkflowID(plan.ID), plan.Steps[0], nil))

	err := saga.Compensate(context.Background(), plan, []magray.StepID{"s1"})
	require.Error(t, err)
	require.Empty(t, comp.calls)
}

func TestSagaWrapsCompensationFailureWithoutMaskingOriginal(t *testing.T) {
	plan := &magray.ActionPlan{ID: "p1", Steps: []*magray.ActionStep{{ID: "s1"}}}
	comp := &fakeCompensator{fail: map[magray.StepID]bool{"s1": true}}
	saga := NewSaga(nil, comp)
	c1 := magray.StepID("c1")
	require.NoError(t, saga.RecordExecuted(context.Background(), magray.WorkflowID(plan.ID), plan.Steps[0], &c1))

	err := saga.Compensate(context.Background(), plan, []magray.StepID{"s1"})
	require.Error(t, err)
}
