package agents

import (
	"github.com/magray/magray/pkg/magray"
)

// CriticWeights assigns each QualityMetrics dimension its share of the
// overall score. Documented here per spec.md §4.5's "weighted mean with
// documented weights" requirement; these are the defaults NewCritic
// installs absent an override.
type CriticWeights struct {
	Efficiency   float64
	Reliability  float64
	Performance  float64
	Utilization  float64
	Satisfaction float64
}

// DefaultCriticWeights weighs reliability and performance above the rest,
// since a cheap plan that fails or stalls is worse than an expensive one
// that finishes correctly.
var DefaultCriticWeights = CriticWeights{
	Efficiency:   0.15,
	Reliability:  0.30,
	Performance:  0.25,
	Utilization:  0.10,
	Satisfaction: 0.20,
}

// CriticThresholds is the set of per-dimension floors below which Critic
// emits an ImprovementSuggestion.
type CriticThresholds struct {
	Efficiency   float64
	Reliability  float64
	Performance  float64
	Utilization  float64
	Satisfaction float64
}

// DefaultCriticThresholds flags any dimension under 0.6.
var DefaultCriticThresholds = CriticThresholds{
	Efficiency:   0.6,
	Reliability:  0.6,
	Performance:  0.6,
	Utilization:  0.6,
	Satisfaction: 0.6,
}

// Critic scores a completed ExecutionResult against the plan's
// ResourceEstimate and emits CriticFeedback, per spec.md §4.5.
type Critic struct {
	Weights    CriticWeights
	Thresholds CriticThresholds
}

// NewCritic constructs a Critic with the default weights and thresholds.
func NewCritic() *Critic {
	return &Critic{Weights: DefaultCriticWeights, Thresholds: DefaultCriticThresholds}
}

// UserFeedback is an optional explicit satisfaction signal supplied by the
// caller; when nil, satisfaction is derived from the ExecutionResult's
// terminal status instead.
type UserFeedback struct {
	Score float64 // [0,1]
}

// Evaluate computes CriticFeedback for result against plan's
// ResourceEstimate. feedback may be nil, in which case satisfaction is
// derived from whether the plan completed without failed steps.
func (c *Critic) Evaluate(plan *magray.ActionPlan, result magray.ExecutionResult, feedback *UserFeedback) magray.CriticFeedback {
	weights := c.Weights
	if (weights == CriticWeights{}) {
		weights = DefaultCriticWeights
	}
	thresholds := c.Thresholds
	if (thresholds == CriticThresholds{}) {
		thresholds = DefaultCriticThresholds
	}

	metrics := magray.QualityMetrics{
		Efficiency:   efficiency(plan, result),
		Reliability:  reliability(result),
		Performance:  performance(plan, result),
		Utilization:  utilization(plan, result),
		Satisfaction: satisfaction(result, feedback),
	}

	overall := weights.Efficiency*metrics.Efficiency +
		weights.Reliability*metrics.Reliability +
		weights.Performance*metrics.Performance +
		weights.Utilization*metrics.Utilization +
		weights.Satisfaction*metrics.Satisfaction

	feedbackOut := magray.CriticFeedback{
		PlanID:  plan.ID,
		Overall: clamp01(overall),
		Metrics: metrics,
		Risk:    assessRisk(plan, result),
	}
	feedbackOut.Suggestions = suggest(metrics, thresholds)
	return feedbackOut
}

func efficiency(plan *magray.ActionPlan, result magray.ExecutionResult) float64 {
	estimated := plan.ResourceEstimate.CPUMillis
	if estimated <= 0 {
		return 1
	}
	return clamp01(1 - float64(result.Usage.CPUMillis)/float64(estimated))
}

func reliability(result magray.ExecutionResult) float64 {
	if len(result.Steps) == 0 {
		return 1
	}
	var failed int
	for _, r := range result.Steps {
		if r.Status == magray.StatusFailed {
			failed++
		}
	}
	return clamp01(1 - float64(failed)/float64(len(result.Steps)))
}

func performance(plan *magray.ActionPlan, result magray.ExecutionResult) float64 {
	estimated := plan.ResourceEstimate.WallMillis
	if estimated <= 0 {
		return 1
	}
	return clamp01(1 - float64(result.Usage.WallMillis)/float64(estimated))
}

// utilization averages, per resource dimension, the fraction of the plan's
// estimate that was actually used: a plan that used far less than it reserved
// scores low here even though it scores high on efficiency/performance,
// since reserved-but-unused capacity is itself a planning cost.
func utilization(plan *magray.ActionPlan, result magray.ExecutionResult) float64 {
	headrooms := make([]float64, 0, 2)
	if plan.ResourceEstimate.CPUMillis > 0 {
		headrooms = append(headrooms, clamp01(float64(result.Usage.CPUMillis)/float64(plan.ResourceEstimate.CPUMillis)))
	}
	if plan.ResourceEstimate.PeakMemoryMB > 0 {
		headrooms = append(headrooms, clamp01(float64(result.Usage.PeakMemoryMB)/float64(plan.ResourceEstimate.PeakMemoryMB)))
	}
	if len(headrooms) == 0 {
		return 1
	}
	var sum float64
	for _, h := range headrooms {
		sum += h
	}
	return clamp01(sum / float64(len(headrooms)))
}

func satisfaction(result magray.ExecutionResult, feedback *UserFeedback) float64 {
	if feedback != nil {
		return clamp01(feedback.Score)
	}
	if result.Status == magray.StatusCompleted {
		return 1
	}
	return 0
}

func assessRisk(plan *magray.ActionPlan, result magray.ExecutionResult) magray.RiskAssessment {
	hasCompensation := make(map[magray.StepID]bool)
	for _, s := range plan.Steps {
		if s.Kind == magray.StepCompensate {
			if forStep, ok := s.Parameters["for_step"].(string); ok {
				hasCompensation[magray.StepID(forStep)] = true
			}
		}
	}
	var uncompensated []magray.StepID
	for id, r := range result.Steps {
		if r.Status == magray.StatusCompleted && !hasCompensation[id] {
			uncompensated = append(uncompensated, id)
		}
	}
	notes := ""
	if len(uncompensated) > 0 {
		notes = "completed steps without a declared compensation cannot be rolled back automatically"
	}
	return magray.RiskAssessment{UncompensatedSteps: uncompensated, Notes: notes}
}

func suggest(metrics magray.QualityMetrics, thresholds CriticThresholds) []magray.ImprovementSuggestion {
	var out []magray.ImprovementSuggestion
	check := func(category string, value, threshold float64, detail string) {
		if value < threshold {
			priority := magray.PriorityMedium
			if value < threshold/2 {
				priority = magray.PriorityHigh
			}
			out = append(out, magray.ImprovementSuggestion{Category: category, Priority: priority, Detail: detail})
		}
	}
	check("efficiency", metrics.Efficiency, thresholds.Efficiency, "observed CPU usage exceeded the plan's estimate; tighten the tool's declared limits or split the step")
	check("reliability", metrics.Reliability, thresholds.Reliability, "a significant fraction of steps failed; consider restricting to steps with lower failure rates")
	check("performance", metrics.Performance, thresholds.Performance, "wall time exceeded the plan's estimate; consider raising max_concurrent_steps or narrowing scope")
	check("utilization", metrics.Utilization, thresholds.Utilization, "reserved resources went largely unused; reduce declared limits to improve scheduling")
	check("satisfaction", metrics.Satisfaction, thresholds.Satisfaction, "outcome fell short of user expectation")
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
