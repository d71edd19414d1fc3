// Package inmem implements orchestrator.Engine entirely in-process,
// grounded on the teacher's runtime/agent/engine.Engine abstraction but
// backed by a plain goroutine instead of a durable workflow scheduler.
// This is the default engine: test-friendly, zero external dependencies,
// and sufficient for a single-node MAGRAY deployment.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/pkg/magray"
)

// Engine runs each started workflow as its own goroutine.
type Engine struct{}

// New constructs an in-memory Engine.
func New() *Engine { return &Engine{} }

// Start implements orchestrator.Engine.
func (e *Engine) Start(ctx context.Context, req orchestrator.StartRequest) (orchestrator.Handle, error) {
	runCtx, cancel := context.WithCancel(ctx)
	h := &handle{
		workflowID: req.WorkflowID,
		signals:    make(chan orchestrator.ControlSignal, 8),
		done:       make(chan struct{}),
		cancel:     cancel,
	}

	wfCtx := &workflowContext{ctx: runCtx, workflowID: req.WorkflowID, signals: h.signals}

	go func() {
		defer close(h.done)
		result, err := req.Run(wfCtx, req.Request)
		h.mu.Lock()
		h.result, h.err = result, err
		h.mu.Unlock()
	}()

	return h, nil
}

type handle struct {
	workflowID magray.WorkflowID
	signals    chan orchestrator.ControlSignal
	done       chan struct{}
	cancel     context.CancelFunc

	mu     sync.Mutex
	result magray.ExecutionResult
	err    error
}

func (h *handle) Wait(ctx context.Context) (magray.ExecutionResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return magray.ExecutionResult{}, ctx.Err()
	}
}

func (h *handle) Signal(ctx context.Context, cmd magray.ControlCommand) error {
	select {
	case h.signals <- orchestrator.ControlSignal{Command: cmd}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return magray.NewError(magray.ErrBackpressureTimeout, "workflow %q did not accept signal", h.workflowID)
	}
}

func (h *handle) Cancel(ctx context.Context) error {
	if err := h.Signal(ctx, magray.ControlCancel); err != nil {
		return err
	}
	h.cancel()
	return nil
}

type workflowContext struct {
	ctx        context.Context
	workflowID magray.WorkflowID
	signals    chan orchestrator.ControlSignal
}

func (w *workflowContext) Context() context.Context                   { return w.ctx }
func (w *workflowContext) WorkflowID() magray.WorkflowID              { return w.workflowID }
func (w *workflowContext) Signals() <-chan orchestrator.ControlSignal { return w.signals }
func (w *workflowContext) Now() time.Time                             { return time.Now() }

var _ orchestrator.Engine = (*Engine)(nil)
var _ orchestrator.WorkflowContext = (*workflowContext)(nil)
var _ orchestrator.Handle = (*handle)(nil)
