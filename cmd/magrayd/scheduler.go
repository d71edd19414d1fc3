package main

import (
	"context"
	"time"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/internal/telemetry"
	"github.com/magray/magray/internal/tools"
	"github.com/magray/magray/pkg/magray"
)

// runSchedulerLoop polls sched.ListDue on a fixed tick and runs each due
// job's plan through planner+executor, recording
// magray_scheduler_jobs_total/magray_scheduler_job_duration_seconds for
// every execution. Grounded on the teacher's background-goroutine pattern
// in example/cmd/assistant/main.go (wg-tracked goroutine, ctx.Done shuts
// it down); the poll-and-dispatch body has no teacher analogue since
// spec.md's cron/deadline Scheduler is new to MAGRAY.
func runSchedulerLoop(ctx context.Context, sched *agents.Scheduler, planner *agents.Planner, executor *agents.Executor, logger telemetry.Logger, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := sched.ListDue(ctx, now, magray.ResourceUsage{})
			if err != nil {
				logger.Error(ctx, "scheduler: list due jobs", "error", err)
				continue
			}
			for _, job := range due {
				runDueJob(ctx, job, planner, executor, logger)
			}
		}
	}
}

func runDueJob(ctx context.Context, job agents.Job, planner *agents.Planner, executor *agents.Executor, logger telemetry.Logger) {
	start := time.Now()
	grants := make([]tools.CapabilityGrant, 0, len(job.Grants))
	for _, kind := range job.Grants {
		grants = append(grants, tools.CapabilityGrant{Kind: magray.CapabilityKind(kind)})
	}

	outcome := "ok"
	plan, err := planner.Plan([]agents.StepSpec{job.Plan}, grants)
	if err != nil {
		outcome = "error"
		logger.Error(ctx, "scheduler: plan job", "job", job.ID, "error", err)
	} else {
		result := executor.Execute(ctx, plan)
		if result.Status != magray.StatusCompleted {
			outcome = "error"
		}
	}

	telemetry.SchedulerJobDurationSeconds.WithLabelValues(job.ID).Observe(time.Since(start).Seconds())
	telemetry.SchedulerJobsTotal.WithLabelValues(job.ID, outcome).Inc()
}
