package agents

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

// StepDispatcher invokes the tool named by a StepToolExecution step's
// Parameters["tool"] and returns its output; satisfied directly by
// internal/tools.Dispatcher.
type StepDispatcher interface {
	Invoke(ctx context.Context, name magray.ToolName, args map[string]any, grants []tools.CapabilityGrant) (map[string]any, error)
}

var _ StepDispatcher = (*tools.Dispatcher)(nil)

// Compensator rolls back already-executed steps in reverse order using
// their declared StepCompensate steps, the seam Executor needs from the
// Saga (internal/orchestrator), per spec.md §4.5's Rollback control
// command.
type Compensator interface {
	Compensate(ctx context.Context, plan *magray.ActionPlan, executed []magray.StepID) error
}

// ExecutorLimits bounds how aggressively Executor dispatches a plan.
type ExecutorLimits struct {
	MaxConcurrentSteps int
	SafetyFactor       float64
}

// DefaultExecutorLimits matches the conservative defaults spec.md §5
// implies: per-step timeouts default to plan estimates × a safety factor.
var DefaultExecutorLimits = ExecutorLimits{MaxConcurrentSteps: 4, SafetyFactor: 1.5}

// Executor executes an ActionPlan's DAG: maintain a ready set of steps
// whose dependencies are Completed, dispatch up to MaxConcurrentSteps in
// parallel, retry failed steps with exponential backoff and jitter up to
// their RetryPolicy, and cascade failure (or delegate to Compensator on
// Rollback) per spec.md §4.5.
type Executor struct {
	Dispatcher  StepDispatcher
	Compensator Compensator
	Limits      ExecutorLimits
	Publish     func(context.Context, magray.Event) error

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
	cancel  context.CancelFunc
}

// NewExecutor constructs an Executor with the default limits.
func NewExecutor(dispatcher StepDispatcher, compensator Compensator) *Executor {
	return &Executor{Dispatcher: dispatcher, Compensator: compensator, Limits: DefaultExecutorLimits, resumed: make(chan struct{})}
}

// Pause blocks new step dispatch until Resume is called.
func (e *Executor) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return
	}
	e.paused = true
	e.resumed = make(chan struct{})
}

// Resume releases a paused Executor.
func (e *Executor) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	close(e.resumed)
}

// Cancel aborts the in-flight Execute call, if any, at its next suspension
// point.
func (e *Executor) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Control dispatches one of the commands spec.md §4.5 lists for the
// Executor. Rollback is intentionally excluded: it needs the plan and
// ExecutionResult to compensate against, so callers invoke Rollback
// directly rather than through Control.
func (e *Executor) Control(cmd magray.ControlCommand) error {
	switch cmd {
	case magray.ControlPause:
		e.Pause()
	case magray.ControlResume:
		e.Resume()
	case magray.ControlCancel:
		e.Cancel()
	case magray.ControlRollback:
		return magray.NewError(magray.ErrValidationError, "rollback requires a plan and result; call Executor.Rollback directly")
	default:
		return magray.NewError(magray.ErrValidationError, "unknown control command %d", cmd)
	}
	return nil
}

func (e *Executor) waitIfPaused(ctx context.Context) error {
	e.mu.Lock()
	paused, ch := e.paused, e.resumed
	e.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute dispatches plan's steps to completion, cancellation, or failure.
// The returned ExecutionResult.Status is Completed only if every step
// succeeds; a cascaded failure yields Failed with the offending steps'
// errors recorded in Steps.
func (e *Executor) Execute(ctx context.Context, plan *magray.ActionPlan) magray.ExecutionResult {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	result := magray.ExecutionResult{PlanID: plan.ID, Steps: make(map[magray.StepID]magray.StepResult, len(plan.Steps))}
	completed := make(map[magray.StepID]bool, len(plan.Steps))
	var executedOrder []magray.StepID
	var usage magray.ResourceUsage
	limits := e.Limits
	if limits.MaxConcurrentSteps <= 0 {
		limits = DefaultExecutorLimits
	}

	failed := false
	for len(completed) < len(plan.Steps) {
		if err := e.waitIfPaused(ctx); err != nil {
			result.Status = magray.StatusCancelled
			result.Error = magray.WrapError(magray.ErrInternal, err, "execution cancelled while paused")
			return result
		}
		if ctx.Err() != nil {
			result.Status = magray.StatusCancelled
			result.Error = magray.NewError(magray.ErrInternal, "execution cancelled")
			return result
		}

		ready := plan.ReadySteps(completed)
		if len(ready) == 0 {
			break
		}
		if failed {
			break
		}

		batch := ready
		if len(batch) > limits.MaxConcurrentSteps {
			batch = batch[:limits.MaxConcurrentSteps]
		}

		var wg sync.WaitGroup
		resultsCh := make(chan struct {
			id magray.StepID
			r  magray.StepResult
		}, len(batch))
		for _, step := range batch {
			wg.Add(1)
			go func(s *magray.ActionStep) {
				defer wg.Done()
				r := e.runStep(ctx, s)
				resultsCh <- struct {
					id magray.StepID
					r  magray.StepResult
				}{s.ID, r}
			}(step)
		}
		wg.Wait()
		close(resultsCh)

		for entry := range resultsCh {
			result.Steps[entry.id] = entry.r
			completed[entry.id] = true
			executedOrder = append(executedOrder, entry.id)
			usage.WallMillis = maxI64(usage.WallMillis, entry.r.Elapsed.Milliseconds())
			usage.ToolInvocations++
			if entry.r.Status == magray.StatusFailed {
				failed = true
			}
			e.publishStepResult(ctx, plan.ID, entry.id, entry.r)
		}
	}

	result.Usage = usage
	if failed {
		result.Status = magray.StatusFailed
		result.Error = magray.NewError(magray.ErrInternal, "one or more steps failed")
		if e.Compensator != nil {
			if cErr := e.Compensator.Compensate(ctx, plan, executedOrder); cErr != nil {
				result.Error = magray.JoinCompensationFailure(result.Error, cErr).(*magray.Error)
			}
		}
		return result
	}
	result.Status = magray.StatusCompleted
	return result
}

// Rollback delegates to the Compensator for every step already recorded
// as executed in result, per spec.md §4.5's Rollback control command.
func (e *Executor) Rollback(ctx context.Context, plan *magray.ActionPlan, result magray.ExecutionResult) error {
	if e.Compensator == nil {
		return magray.NewError(magray.ErrInternal, "no compensator configured")
	}
	executed := make([]magray.StepID, 0, len(result.Steps))
	for id, r := range result.Steps {
		if r.Status == magray.StatusCompleted {
			executed = append(executed, id)
		}
	}
	return e.Compensator.Compensate(ctx, plan, executed)
}

func (e *Executor) runStep(ctx context.Context, step *magray.ActionStep) magray.StepResult {
	start := time.Now()
	policy := step.Retry
	if policy.MaxAttempts <= 0 {
		policy = magray.DefaultRetryPolicy()
	}

	var timeout time.Duration
	if step.ExpectedDuration > 0 {
		factor := e.Limits.SafetyFactor
		if factor <= 0 {
			factor = DefaultExecutorLimits.SafetyFactor
		}
		timeout = time.Duration(float64(step.ExpectedDuration) * factor)
	}

	var lastErr error
	var output map[string]any
	attempts := 0
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attempts = attempt
		toolName, _ := step.Parameters["tool"].(string)
		attemptCtx, cancelAttempt := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, timeout)
		}
		var err error
		output, err = e.dispatch(attemptCtx, magray.ToolName(toolName), step.Parameters)
		cancelAttempt()
		if err == nil {
			return magray.StepResult{
				Status:  magray.StatusCompleted,
				Output:  output,
				Elapsed: time.Since(start),
				Retries: attempt - 1,
			}
		}
		lastErr = err
		if !isRetryable(err) || attempt == policy.MaxAttempts {
			break
		}

		wait := backoffWithJitter(policy, attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = policy.MaxAttempts
		}
	}

	var magErr *magray.Error
	if me, ok := lastErr.(*magray.Error); ok {
		magErr = me
	} else {
		magErr = magray.WrapError(magray.ErrInternal, lastErr, "step %s failed", step.ID)
	}
	return magray.StepResult{
		Status:  magray.StatusFailed,
		Error:   magErr,
		Elapsed: time.Since(start),
		Retries: attempts - 1,
	}
}

func (e *Executor) dispatch(ctx context.Context, tool magray.ToolName, params map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(params))
	for k, v := range params {
		if k == "tool" {
			continue
		}
		args[k] = v
	}
	return e.Dispatcher.Invoke(ctx, tool, args, nil)
}

func isRetryable(err error) bool {
	if me, ok := err.(*magray.Error); ok {
		return me.Retryable
	}
	return true
}

// backoffWithJitter computes exponential backoff with multiplicative
// jitter, per spec.md §4.5: "exponential backoff with jitter, capped
// attempts".
func backoffWithJitter(policy magray.RetryPolicy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= policy.BackoffFactor
	}
	if ceiling := float64(policy.MaxBackoff); policy.MaxBackoff > 0 && backoff > ceiling {
		backoff = ceiling
	}
	jitter := backoff * policy.JitterFraction * (rand.Float64()*2 - 1)
	d := time.Duration(backoff + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func (e *Executor) publishStepResult(ctx context.Context, planID magray.PlanID, stepID magray.StepID, r magray.StepResult) {
	if e.Publish == nil {
		return
	}
	_ = e.Publish(ctx, magray.Event{
		Topic:         magray.TopicStep + "." + magray.Topic(r.Status),
		CorrelationID: string(planID),
		Timestamp:     time.Now(),
		Payload:       map[string]any{"step_id": string(stepID), "status": string(r.Status)},
	})
}
