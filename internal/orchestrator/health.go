package orchestrator

import (
	"time"

	"github.com/magray/magray/internal/actor"
	"github.com/magray/magray/internal/tools"
)

// AgentHealth names the actor.Health snapshot for one named Agent role
// (IntentAnalyzer, Planner, Executor, Critic, Scheduler).
type AgentHealth struct {
	Role   string
	Health actor.Health
}

// ToolRegistryHealth summarizes the Tool Registry's reachability for the
// aggregate health endpoint.
type ToolRegistryHealth struct {
	ToolCount int
	Reachable bool
}

// HealthReport is the Health endpoint's payload, aggregating per-actor
// health and Tool Registry status in one snapshot, per spec.md §4.6:
// "Health endpoint aggregates per-actor health and Tool Registry status."
type HealthReport struct {
	Agents    []AgentHealth
	Registry  ToolRegistryHealth
	Timestamp time.Time
}

// Healthy reports whether every agent is alive and the registry is
// reachable.
func (h HealthReport) Healthy() bool {
	if !h.Registry.Reachable {
		return false
	}
	for _, a := range h.Agents {
		if !a.Health.Alive {
			return false
		}
	}
	return true
}

// HealthAggregator collects Supervisor health across the fixed set of
// named agent roles and the Tool Registry's load state, grounded on the
// teacher's runtime/agent/interrupt.Controller health surfacing pattern
// generalized to a multi-actor snapshot.
type HealthAggregator struct {
	supervisors map[string]*actor.Supervisor
	registry    *tools.Registry
}

// NewHealthAggregator constructs an aggregator over the given named
// supervisors and the shared tool Registry.
func NewHealthAggregator(supervisors map[string]*actor.Supervisor, registry *tools.Registry) *HealthAggregator {
	return &HealthAggregator{supervisors: supervisors, registry: registry}
}

// Report snapshots health across every registered actor and the Tool
// Registry.
func (a *HealthAggregator) Report(now time.Time) HealthReport {
	agents := make([]AgentHealth, 0, len(a.supervisors))
	for role, sup := range a.supervisors {
		agents = append(agents, AgentHealth{Role: role, Health: sup.Health()})
	}
	var reg ToolRegistryHealth
	if a.registry != nil {
		reg = ToolRegistryHealth{ToolCount: len(a.registry.List()), Reachable: true}
	}
	return HealthReport{Agents: agents, Registry: reg, Timestamp: now}
}
