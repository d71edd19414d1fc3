package magray

import "time"

type (
	// Status is the terminal or in-flight state of a Workflow, Plan, or
	// individual step.
	Status string

	// ExecutionResult is the Executor's output for a completed, failed,
	// cancelled, or paused plan run.
	ExecutionResult struct {
		PlanID    PlanID
		Status    Status
		Steps     map[StepID]StepResult
		Usage     ResourceUsage
		Error     *Error
	}

	// StepResult records the outcome of dispatching a single ActionStep.
	StepResult struct {
		Status   Status
		Output   map[string]any
		Error    *Error
		Elapsed  time.Duration
		Retries  int
		Metadata map[string]any
	}

	// ResourceUsage is the additive accounting of resources consumed by a
	// step, a plan, or (estimated) the sum of a plan's steps.
	ResourceUsage struct {
		CPUMillis      int64
		PeakMemoryMB   int64
		DiskIOCount    int64
		NetRequests    int64
		ToolInvocations int64
		WallMillis     int64
	}

	// Add combines two ResourceUsage values: counters are summed, while
	// PeakMemoryMB and WallMillis take the larger of the two.
)

// Status values shared across Workflow/Plan/Step granularities.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Add returns u combined with other: CPUMillis, DiskIOCount, NetRequests
// and ToolInvocations are summed; PeakMemoryMB and WallMillis take the
// maximum.
func (u ResourceUsage) Add(other ResourceUsage) ResourceUsage {
	return ResourceUsage{
		CPUMillis:       u.CPUMillis + other.CPUMillis,
		PeakMemoryMB:    maxInt64(u.PeakMemoryMB, other.PeakMemoryMB),
		DiskIOCount:     u.DiskIOCount + other.DiskIOCount,
		NetRequests:     u.NetRequests + other.NetRequests,
		ToolInvocations: u.ToolInvocations + other.ToolInvocations,
		WallMillis:      maxInt64(u.WallMillis, other.WallMillis),
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
