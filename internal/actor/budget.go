package actor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/magray/magray/pkg/magray"
)

// Budget tracks an Actor's resource consumption against caps pulled from
// spec.md §5: CPU-ms, wall-ms, memory hint, and outstanding tool
// invocations. Adapted from the teacher's activity_input_budget.go, which
// enforces a single fixed payload-size budget before scheduling a
// Temporal activity; Budget generalizes that single check into a running,
// multi-dimensional accounting object an actor consults throughout its
// lifetime rather than once per activity.
type Budget struct {
	MaxCPUMillis        int64
	MaxWallMillis        int64
	MaxMemoryMB          int64
	MaxOutstandingTools  int64

	startedAt      time.Time
	cpuMillis      atomic.Int64
	outstanding    atomic.Int64
	peakMemoryMB   atomic.Int64

	mu       sync.Mutex
	onExceed func(dimension string)
}

// NewBudget constructs a Budget with the given caps; a zero field means
// "unbounded" for that dimension.
func NewBudget(maxCPUMillis, maxWallMillis, maxMemoryMB, maxOutstandingTools int64) *Budget {
	return &Budget{
		MaxCPUMillis:        maxCPUMillis,
		MaxWallMillis:       maxWallMillis,
		MaxMemoryMB:         maxMemoryMB,
		MaxOutstandingTools: maxOutstandingTools,
		startedAt:           time.Now(),
	}
}

// OnExceed installs a callback invoked every time a dimension is found
// exceeded, used to emit the error.budget event spec.md §5 requires.
func (b *Budget) OnExceed(fn func(dimension string)) {
	b.mu.Lock()
	b.onExceed = fn
	b.mu.Unlock()
}

// AddCPU records CPU time spent and reports whether the CPU cap is now
// exceeded.
func (b *Budget) AddCPU(d time.Duration) bool {
	total := b.cpuMillis.Add(d.Milliseconds())
	if b.MaxCPUMillis > 0 && total > b.MaxCPUMillis {
		b.trip("cpu")
		return true
	}
	return false
}

// RecordMemory updates the peak memory hint and reports whether the memory
// cap is now exceeded.
func (b *Budget) RecordMemory(mb int64) bool {
	for {
		cur := b.peakMemoryMB.Load()
		if mb <= cur {
			break
		}
		if b.peakMemoryMB.CompareAndSwap(cur, mb) {
			break
		}
	}
	if b.MaxMemoryMB > 0 && mb > b.MaxMemoryMB {
		b.trip("memory")
		return true
	}
	return false
}

// BeginTool increments the outstanding tool-invocation count, returning
// ErrResourceExhausted if doing so would exceed MaxOutstandingTools.
func (b *Budget) BeginTool() error {
	next := b.outstanding.Add(1)
	if b.MaxOutstandingTools > 0 && next > b.MaxOutstandingTools {
		b.outstanding.Add(-1)
		b.trip("outstanding_tools")
		return magray.NewError(magray.ErrResourceExhausted, "outstanding tool invocations would exceed budget of %d", b.MaxOutstandingTools)
	}
	return nil
}

// EndTool decrements the outstanding tool-invocation count.
func (b *Budget) EndTool() {
	b.outstanding.Add(-1)
}

// WallExceeded reports whether the actor has run longer than the wall
// budget since NewBudget was called.
func (b *Budget) WallExceeded() bool {
	if b.MaxWallMillis <= 0 {
		return false
	}
	exceeded := time.Since(b.startedAt).Milliseconds() > b.MaxWallMillis
	if exceeded {
		b.trip("wall")
	}
	return exceeded
}

// Usage snapshots the budget's consumption as a magray.ResourceUsage for
// inclusion in an ExecutionResult.
func (b *Budget) Usage() magray.ResourceUsage {
	return magray.ResourceUsage{
		CPUMillis:       b.cpuMillis.Load(),
		PeakMemoryMB:    b.peakMemoryMB.Load(),
		ToolInvocations: b.outstanding.Load(),
		WallMillis:      time.Since(b.startedAt).Milliseconds(),
	}
}

func (b *Budget) trip(dimension string) {
	b.mu.Lock()
	fn := b.onExceed
	b.mu.Unlock()
	if fn != nil {
		fn(dimension)
	}
}
