package agents

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/pkg/magray"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	s, err := NewScheduler(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSchedulerDeadlineJobBecomesDue(t *testing.T) {
	s := newTestScheduler(t)
	now := time.Now()
	require.NoError(t, s.Schedule(Job{ID: "j1", Kind: JobDeadline, NextRun: now.Add(-time.Second)}))

	due, err := s.ListDue(context.Background(), now, magray.ResourceUsage{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "j1", due[0].ID)

	due, err = s.ListDue(context.Background(), now, magray.ResourceUsage{})
	require.NoError(t, err)
	require.Empty(t, due, "one-shot job should not recur")
}

func TestSchedulerCronJobRearms(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Schedule(Job{ID: "j2", Kind: JobCron, Spec: "* * * * *"}))

	future := time.Now().Add(2 * time.Minute)
	due, err := s.ListDue(context.Background(), future, magray.ResourceUsage{})
	require.NoError(t, err)
	require.Len(t, due, 1)

	s.mu.Lock()
	_, stillTracked := s.byID["j2"]
	s.mu.Unlock()
	require.True(t, stillTracked, "cron job should be re-armed, not dropped")
}

func TestSchedulerAdmissionDefersJob(t *testing.T) {
	s := newTestScheduler(t)
	now := time.Now()
	require.NoError(t, s.Schedule(Job{ID: "j3", Kind: JobDeadline, NextRun: now.Add(-time.Second)}))

	s.Admit = func(estimate magray.ResourceUsage) bool { return false }
	due, err := s.ListDue(context.Background(), now, magray.ResourceUsage{})
	require.NoError(t, err)
	require.Empty(t, due)

	s.Admit = func(estimate magray.ResourceUsage) bool { return true }
	due, err = s.ListDue(context.Background(), now, magray.ResourceUsage{})
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestSchedulerCancelRemovesJob(t *testing.T) {
	s := newTestScheduler(t)
	now := time.Now()
	require.NoError(t, s.Schedule(Job{ID: "j4", Kind: JobDeadline, NextRun: now.Add(time.Hour)}))
	require.NoError(t, s.Cancel("j4"))

	s.mu.Lock()
	_, ok := s.byID["j4"]
	s.mu.Unlock()
	require.False(t, ok)
}

func TestSchedulerRestoreDropsExpiredOneShotJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.db")
	s, err := NewScheduler(path)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, s.Schedule(Job{ID: "expired", Kind: JobDeadline, NextRun: now.Add(-time.Hour)}))
	require.NoError(t, s.Schedule(Job{ID: "pending", Kind: JobDeadline, NextRun: now.Add(time.Hour)}))
	require.NoError(t, s.Close())

	s2, err := NewScheduler(path)
	require.NoError(t, err)
	defer s2.Close()

	s2.mu.Lock()
	_, expiredTracked := s2.byID["expired"]
	_, pendingTracked := s2.byID["pending"]
	s2.mu.Unlock()
	require.False(t, expiredTracked)
	require.True(t, pendingTracked)
}
