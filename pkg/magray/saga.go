package magray

// SagaStepState is the lifecycle state of one SagaStep.
type SagaStepState string

// SagaStepState variants.
const (
	SagaPending     SagaStepState = "pending"
	SagaExecuted    SagaStepState = "executed"
	SagaCompensated SagaStepState = "compensated"
)

// SagaStep pairs a forward action with its compensation. The Orchestrator
// appends one SagaStep per executed ActionStep that declares a
// compensation; on rollback, the Saga walks executed steps in reverse
// order and invokes each compensation in turn (Invariant 2, spec.md §8).
type SagaStep struct {
	StepID        StepID
	Forward       StepID
	Compensation  *StepID
	State         SagaStepState
}

// HasCompensation reports whether this step declared a rollback action.
func (s SagaStep) HasCompensation() bool {
	return s.Compensation != nil
}
