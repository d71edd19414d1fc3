package orchestrator

import (
	"context"
	"time"

	"github.com/magray/magray/pkg/magray"
)

// Engine abstracts durable workflow execution so the Orchestrator can run
// against an in-memory engine (tests, single node) or a Temporal-backed
// one (internal/orchestrator/temporal) without the driving code changing,
// grounded directly on the teacher's runtime/agent/engine.Engine
// interface, narrowed from its generic multi-workflow/activity
// registration surface to the single fixed Intent→Plan→Execute→Critic
// workflow shape MAGRAY runs.
type Engine interface {
	// Start launches req as a new workflow execution and returns a handle
	// for awaiting, signaling, or cancelling it.
	Start(ctx context.Context, req StartRequest) (Handle, error)
}

// RunFunc is the workflow body an Engine drives: given the originating
// Request and a WorkflowContext, it returns the terminal ExecutionResult
// (or an error if the workflow itself could not complete).
type RunFunc func(ctx WorkflowContext, req magray.Request) (magray.ExecutionResult, error)

// StartRequest describes one workflow launch, grounded on the teacher's
// engine.WorkflowStartRequest.
type StartRequest struct {
	WorkflowID magray.WorkflowID
	Request    magray.Request
	Run        RunFunc
}

// WorkflowContext exposes engine operations to a running workflow body,
// narrowed from the teacher's engine.WorkflowContext to what MAGRAY's
// fixed workflow shape actually calls: a cancellable Go context, a signal
// channel for control commands, and a deterministic clock.
type WorkflowContext interface {
	Context() context.Context
	WorkflowID() magray.WorkflowID
	// Signals returns the channel control commands (Pause/Resume/Cancel/
	// Rollback) are delivered on for this workflow's execution.
	Signals() <-chan ControlSignal
	Now() time.Time
}

// ControlSignal is one control command delivered to a running workflow,
// per spec.md §4.5/§6's pause|resume|cancel|rollback commands.
type ControlSignal struct {
	Command magray.ControlCommand
}

// Handle lets a caller interact with a started workflow, grounded on the
// teacher's engine.WorkflowHandle.
type Handle interface {
	// Wait blocks until the workflow reaches a terminal ExecutionResult.
	Wait(ctx context.Context) (magray.ExecutionResult, error)
	// Signal delivers a control command to the running workflow.
	Signal(ctx context.Context, cmd magray.ControlCommand) error
	// Cancel requests cancellation; equivalent to Signal with
	// magray.ControlCancel but also cancels the underlying Go context for
	// engines (like inmem) that key cancellation off context.
	Cancel(ctx context.Context) error
}
