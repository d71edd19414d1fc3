package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

// Bus is the publish side of internal/bus.Bus that Orchestrator needs to
// correlate workflow-transition events, per spec.md §4.6.
type Bus interface {
	Publish(ctx context.Context, event magray.Event) error
}

// WorkflowStore persists a Workflow snapshot at every state transition, so
// a crashed process can recover or at least report on whatever was
// in-flight at the time. Optional: a nil Store disables persistence, same
// as a nil Bus disables event publication.
type WorkflowStore interface {
	Save(ctx context.Context, wf *magray.Workflow) error
}

// Orchestrator wires the five Agent roles, the Saga, the Bus, and an
// Engine together and drives one Workflow at a time through its state
// graph, per spec.md §4.6. Grounded on the teacher's runtime/agent/run.Run
// loop (state-by-state driving with event emission at each transition),
// narrowed from the teacher's generic multi-agent-team shape to MAGRAY's
// fixed five-role pipeline.
type Orchestrator struct {
	Intent   *agents.IntentAnalyzer
	Planner  *agents.Planner
	Executor *agents.Executor
	Critic   *agents.Critic
	Saga     *Saga
	Bus      Bus
	Engine   Engine
	Store    WorkflowStore

	// Translate turns an analyzed Intent into the ordered StepSpecs Planner
	// compiles, a convention-based mapping that is intent-kind-specific per
	// agents.StepSpec's doc comment.
	Translate func(intent magray.Intent) ([]agents.StepSpec, error)
	// SessionGrants resolves the capability grants available to req's
	// session, consulted by Planner.Plan.
	SessionGrants func(sessionID magray.SessionID) []tools.CapabilityGrant
}

// New constructs an Orchestrator from its dependencies, defaulting
// Translate to DefaultTranslate if nil.
func New(intent *agents.IntentAnalyzer, planner *agents.Planner, executor *agents.Executor, critic *agents.Critic, saga *Saga, bus Bus, engine Engine) *Orchestrator {
	return &Orchestrator{
		Intent:    intent,
		Planner:   planner,
		Executor:  executor,
		Critic:    critic,
		Saga:      saga,
		Bus:       bus,
		Engine:    engine,
		Translate: DefaultTranslate,
	}
}

// DefaultTranslate maps each IntentKind to a single ActionStep whose tool
// name follows the convention documented on StepSpec/Intent: the tool to
// invoke is named directly by the intent's own Parameters, with a fixed
// per-kind prefix for kinds that route through a category of tools rather
// than a single user-named one.
func DefaultTranslate(intent magray.Intent) ([]agents.StepSpec, error) {
	step := agents.StepSpec{ID: magray.StepID(magray.NewID()), Kind: magray.StepToolExecution, Parameters: intent.Parameters}
	switch intent.Kind {
	case magray.IntentExecuteTool:
		name, _ := intent.Parameters["name"].(string)
		step.Tool = magray.ToolName(name)
	case magray.IntentFileOperation:
		op, _ := intent.Parameters["op"].(string)
		step.Tool = magray.ToolName("file." + op)
	case magray.IntentMemoryOperation:
		op, _ := intent.Parameters["op"].(string)
		step.Tool = magray.ToolName("memory." + op)
	case magray.IntentWorkflowExecution:
		name, _ := intent.Parameters["name"].(string)
		step.Tool = magray.ToolName("workflow." + name)
	case magray.IntentSystemCommand:
		step.Tool = "system.exec"
	case magray.IntentAskQuestion, magray.IntentUnknown:
		return nil, nil
	default:
		return nil, magray.NewError(magray.ErrValidationError, "unrecognized intent kind %q", intent.Kind)
	}
	return []agents.StepSpec{step}, nil
}

// Run drives req through Created→IntentAnalyzed→Planned→Executing→
// terminal→Critiqued→Archived, publishing a correlated event on the bus at
// every transition, and returns the final Workflow.
func (o *Orchestrator) Run(ctx context.Context, req magray.Request) (*magray.Workflow, error) {
	now := time.Now()
	wf := &magray.Workflow{ID: magray.WorkflowID(magray.NewID()), Request: req, State: magray.WorkflowCreated, CreatedAt: now, UpdatedAt: now}

	ictx := magray.IntentContext{SessionID: req.SessionID, Timestamp: now}
	intent, err := o.Intent.Analyze(ctx, req.Utterance, ictx)
	if err != nil {
		return o.fail(ctx, wf, err)
	}
	wf.Intent = &intent
	if err := o.transition(ctx, wf, magray.WorkflowIntentAnalyzed, magray.TopicIntent); err != nil {
		return wf, err
	}

	steps, err := o.Translate(intent)
	if err != nil {
		return o.fail(ctx, wf, err)
	}
	var grants []tools.CapabilityGrant
	if o.SessionGrants != nil {
		grants = o.SessionGrants(req.SessionID)
	}
	plan, err := o.Planner.Plan(steps, grants)
	if err != nil {
		return o.fail(ctx, wf, err)
	}
	wf.Plan = plan
	if err := o.transition(ctx, wf, magray.WorkflowPlanned, magray.TopicPlan); err != nil {
		return wf, err
	}

	if err := o.transition(ctx, wf, magray.WorkflowExecuting, magray.TopicStep); err != nil {
		return wf, err
	}

	run := func(wctx WorkflowContext, _ magray.Request) (magray.ExecutionResult, error) {
		return o.Executor.Execute(wctx.Context(), plan), nil
	}
	handle, err := o.Engine.Start(ctx, StartRequest{WorkflowID: wf.ID, Request: req, Run: run})
	if err != nil {
		return o.fail(ctx, wf, err)
	}
	result, err := handle.Wait(ctx)
	if err != nil && result.Status == "" {
		return o.fail(ctx, wf, err)
	}
	wf.Result = &result

	if o.Saga != nil {
		// Saga keys its recorded steps by the plan's own ID (see
		// orchestrator.workflowIDFor), since a Plan has no WorkflowID field
		// of its own; RecordExecuted calls must use the same key Compensate
		// will look up during rollback.
		sagaWorkflowID := magray.WorkflowID(plan.ID)
		compensationFor := make(map[magray.StepID]magray.StepID)
		for _, s := range plan.Steps {
			if forStep, ok := s.Parameters["for_step"].(string); ok && s.Kind == magray.StepCompensate {
				compensationFor[magray.StepID(forStep)] = s.ID
			}
		}
		for id, r := range result.Steps {
			compID, declared := compensationFor[id]
			if r.Status == magray.StatusCompleted && declared {
				if step := plan.StepByID(id); step != nil {
					_ = o.Saga.RecordExecuted(ctx, sagaWorkflowID, step, &compID)
				}
			}
		}
	}

	terminal := terminalStateFor(result.Status)
	if terminal == magray.WorkflowFailed && result.Error != nil && result.Error.Kind == magray.ErrSagaCompensationFailed {
		terminal = magray.WorkflowPartiallyCompensated
	}
	if err := o.transition(ctx, wf, terminal, magray.TopicStep); err != nil {
		return wf, err
	}

	feedback := o.Critic.Evaluate(plan, result, nil)
	wf.Feedback = &feedback
	if err := o.transition(ctx, wf, magray.WorkflowCritiqued, magray.TopicPlan); err != nil {
		return wf, err
	}
	if err := o.transition(ctx, wf, magray.WorkflowArchived, magray.TopicPlan); err != nil {
		return wf, err
	}
	return wf, nil
}

func terminalStateFor(status magray.Status) magray.WorkflowState {
	switch status {
	case magray.StatusCompleted:
		return magray.WorkflowCompleted
	case magray.StatusCancelled:
		return magray.WorkflowCancelled
	default:
		return magray.WorkflowFailed
	}
}

func (o *Orchestrator) transition(ctx context.Context, wf *magray.Workflow, to magray.WorkflowState, topic magray.Topic) error {
	if err := wf.Transition(to, time.Now()); err != nil {
		return err
	}
	if o.Bus != nil {
		_ = o.Bus.Publish(ctx, magray.Event{
			Topic:         topic,
			CorrelationID: string(wf.ID),
			Timestamp:     time.Now(),
			Payload:       map[string]any{"workflow_state": string(to)},
		})
	}
	if o.Store != nil {
		_ = o.Store.Save(ctx, wf)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, wf *magray.Workflow, cause error) (*magray.Workflow, error) {
	if wf.CanTransition(magray.WorkflowFailed) {
		_ = o.transition(ctx, wf, magray.WorkflowFailed, magray.TopicError)
	}
	return wf, fmt.Errorf("workflow %s: %w", wf.ID, cause)
}
