// Package orchestrator owns the Workflow state machine described in
// spec.md §4.6: it starts a Workflow per Request, drives it through
// Intent→Plan→Execute→Critic, runs Saga compensation on failure, and
// aggregates Health across the Agent Runtime and Tool Registry.
package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/pkg/magray"
)

// SagaLogEntry is one immutable record appended to a Saga's durable log,
// shaped after the teacher's runlog.Event (RunID/AgentID/Type/Payload).
type SagaLogEntry struct {
	WorkflowID magray.WorkflowID
	StepID     magray.StepID
	State      magray.SagaStepState
	Timestamp  time.Time
}

// SagaLog is an append-only, fsynced durable log of SagaLogEntry records,
// per spec.md §5's "Saga logs are append-only and fsynced at transition
// points". Grounded on the teacher's runlog.Store interface shape
// (Append/List), narrowed to the Saga's own entry type.
type SagaLog interface {
	Append(ctx context.Context, e SagaLogEntry) error
	List(ctx context.Context, workflowID magray.WorkflowID) ([]SagaLogEntry, error)
}

// FileSagaLog is a SagaLog backed by a single append-only file, fsynced
// after every write so a crash between transitions never loses a
// compensation record. One line of JSON per entry.
type FileSagaLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSagaLog opens (creating if absent) the log file at path.
func NewFileSagaLog(path string) (*FileSagaLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, magray.WrapError(magray.ErrInternal, err, "open saga log %q", path)
	}
	return &FileSagaLog{file: f}, nil
}

// Close releases the underlying file.
func (l *FileSagaLog) Close() error {
	return l.file.Close()
}

// Append writes e as one JSON line and fsyncs before returning, so the
// caller's transition is durable before it is acknowledged.
func (l *FileSagaLog) Append(ctx context.Context, e SagaLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(e)
	if err != nil {
		return magray.WrapError(magray.ErrInternal, err, "marshal saga log entry")
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return magray.WrapError(magray.ErrInternal, err, "append saga log")
	}
	if err := l.file.Sync(); err != nil {
		return magray.WrapError(magray.ErrInternal, err, "fsync saga log")
	}
	return nil
}

// List returns every entry recorded for workflowID, oldest first.
func (l *FileSagaLog) List(ctx context.Context, workflowID magray.WorkflowID) ([]SagaLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Seek(0, os.SEEK_SET); err != nil {
		return nil, magray.WrapError(magray.ErrInternal, err, "seek saga log")
	}
	var out []SagaLogEntry
	scanner := bufio.NewScanner(l.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e SagaLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, magray.WrapError(magray.ErrInternal, err, "decode saga log entry")
		}
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, magray.WrapError(magray.ErrInternal, err, "scan saga log")
	}
	if _, err := l.file.Seek(0, os.SEEK_END); err != nil {
		return nil, magray.WrapError(magray.ErrInternal, err, "seek saga log")
	}
	return out, nil
}

// StepCompensator invokes the compensation tool declared for a forward
// step. Satisfied by an agents.Executor-backed adapter in practice.
type StepCompensator interface {
	Compensate(ctx context.Context, plan *magray.ActionPlan, stepID magray.StepID) error
}

// Saga tracks the forward/compensation pairs for one Workflow's
// ActionPlan and applies compensations in reverse-of-execution order on
// rollback, per spec.md §8 Invariant 2. It implements
// agents.Compensator so Executor can delegate directly to it.
type Saga struct {
	Log         SagaLog
	Compensator StepCompensator

	mu    sync.Mutex
	steps map[magray.WorkflowID][]magray.SagaStep
}

// NewSaga constructs a Saga backed by log for durability and compensator
// for invoking compensation tools.
func NewSaga(log SagaLog, compensator StepCompensator) *Saga {
	return &Saga{Log: log, Compensator: compensator, steps: make(map[magray.WorkflowID][]magray.SagaStep)}
}

// RecordExecuted appends a SagaStep for a just-completed forward step,
// fsyncing to the log before returning.
func (s *Saga) RecordExecuted(ctx context.Context, workflowID magray.WorkflowID, step *magray.ActionStep, compensationID *magray.StepID) error {
	s.mu.Lock()
	s.steps[workflowID] = append(s.steps[workflowID], magray.SagaStep{
		StepID:       step.ID,
		Forward:      step.ID,
		Compensation: compensationID,
		State:        magray.SagaExecuted,
	})
	s.mu.Unlock()

	if s.Log == nil {
		return nil
	}
	return s.Log.Append(ctx, SagaLogEntry{WorkflowID: workflowID, StepID: step.ID, State: magray.SagaExecuted, Timestamp: time.Now()})
}

// Compensate implements agents.Compensator: it walks executed in reverse
// order and invokes each step's declared compensation, recording the
// SagaCompensated transition for every step that succeeds. Steps without
// a declared compensation are skipped and surfaced via the returned
// error so the caller can report them as a declared risk (spec.md §8's
// "missing compensation is a declared risk" note), not silently dropped.
func (s *Saga) Compensate(ctx context.Context, plan *magray.ActionPlan, executed []magray.StepID) error {
	if s.Compensator == nil {
		return magray.NewError(magray.ErrSagaCompensationFailed, "saga has no compensator configured")
	}

	s.mu.Lock()
	sagaSteps := append([]magray.SagaStep(nil), s.steps[workflowIDFor(plan)]...)
	s.mu.Unlock()
	byStep := make(map[magray.StepID]*magray.SagaStep, len(sagaSteps))
	for i := range sagaSteps {
		byStep[sagaSteps[i].StepID] = &sagaSteps[i]
	}

	var errs []error
	var missing []magray.StepID
	for i := len(executed) - 1; i >= 0; i-- {
		stepID := executed[i]
		sagaStep, ok := byStep[stepID]
		if !ok || !sagaStep.HasCompensation() {
			missing = append(missing, stepID)
			continue
		}
		if err := s.Compensator.Compensate(ctx, plan, stepID); err != nil {
			errs = append(errs, magray.WrapError(magray.ErrSagaCompensationFailed, err, "compensating step %q", stepID))
			continue
		}
		sagaStep.State = magray.SagaCompensated
		if s.Log != nil {
			_ = s.Log.Append(ctx, SagaLogEntry{WorkflowID: workflowIDFor(plan), StepID: stepID, State: magray.SagaCompensated, Timestamp: time.Now()})
		}
	}

	if len(missing) > 0 {
		errs = append(errs, magray.NewError(magray.ErrSagaCompensationFailed, "steps without a declared compensation: %v", missing))
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = magray.JoinCompensationFailure(joined, e)
	}
	return joined
}

// workflowIDFor derives the workflow-scoped key the Saga uses to look up
// its recorded steps. Plans don't carry a WorkflowID directly (they're
// Planner output reused across retries); the Orchestrator is expected to
// key RecordExecuted/Compensate calls by the same value it uses here, so
// this simply reuses PlanID as the lookup key when no workflow wrapper is
// available.
func workflowIDFor(plan *magray.ActionPlan) magray.WorkflowID {
	return magray.WorkflowID(plan.ID)
}

var _ agents.Compensator = (*Saga)(nil)
