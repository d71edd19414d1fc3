package agents

import (
	"container/heap"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.etcd.io/bbolt"

	"github.com/magray/magray/pkg/magray"
)

var jobsBucket = []byte("scheduler_jobs")

// JobKind discriminates a cron-recurring job from a one-shot deadline job.
type JobKind string

const (
	JobCron     JobKind = "cron"
	JobDeadline JobKind = "deadline"
)

// Job is one entry in the Scheduler's durable queue, per spec.md §4.5:
// "a persistent priority queue of Jobs (cron or deadline) with
// resource-aware admission".
type Job struct {
	ID       string
	Kind     JobKind
	Spec     string // cron expression for JobCron; unused for JobDeadline, whose deadline is NextRun
	Plan     StepSpec
	Grants   []string // capability kinds granted to this job's plan at schedule time
	NextRun  time.Time
	Disabled bool
}

// AdmissionCheck reports whether the scheduler has enough headroom to run
// one more job right now, given estimated resource cost. Satisfied by
// redisq.Admission.Check, a cluster-wide in-flight counter.
type AdmissionCheck func(estimate magray.ResourceUsage) bool

type jobQueue []*Job

func (q jobQueue) Len() int            { return len(q) }
func (q jobQueue) Less(i, j int) bool  { return q[i].NextRun.Before(q[j].NextRun) }
func (q jobQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *jobQueue) Push(x any)         { *q = append(*q, x.(*Job)) }
func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Scheduler maintains a persistent priority queue of cron and deadline
// Jobs, admitting them to run only when Admit reports headroom, per
// spec.md §4.5. Durability is backed by a bbolt database so the queue
// survives process restarts; on Restore, expired one-shot jobs are
// dropped and recurring jobs are re-armed against their next cron fire.
type Scheduler struct {
	Admit AdmissionCheck

	db     *bbolt.DB
	parser cron.Parser

	mu    sync.Mutex
	queue jobQueue
	byID  map[string]*Job
}

// NewScheduler opens (creating if absent) a bbolt database at path and
// restores any previously scheduled jobs.
func NewScheduler(path string) (*Scheduler, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, magray.WrapError(magray.ErrInternal, err, "open scheduler store %q", path)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, magray.WrapError(magray.ErrInternal, err, "create jobs bucket")
	}

	s := &Scheduler{
		db:     db,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		byID:   make(map[string]*Job),
	}
	if err := s.restore(time.Now()); err != nil {
		db.Close()
		return nil, err
	}
	heap.Init(&s.queue)
	return s, nil
}

// Close releases the underlying store.
func (s *Scheduler) Close() error {
	return s.db.Close()
}

func (s *Scheduler) restore(now time.Time) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(jobsBucket)
		return b.ForEach(func(k, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return magray.WrapError(magray.ErrInternal, err, "decode job %q", k)
			}
			if job.Kind == JobDeadline && job.NextRun.Before(now) {
				return nil // expired one-shot job, dropped per spec.md §4.5
			}
			if job.Kind == JobCron {
				next, err := s.parser.Parse(job.Spec)
				if err == nil {
					job.NextRun = next.Next(now)
				}
			}
			s.byID[job.ID] = &job
			s.queue = append(s.queue, &job)
			return nil
		})
	})
}

// Schedule admits job into the queue and persists it. For JobCron, Spec is
// a five-field cron expression and NextRun is computed from it; for
// JobDeadline, Spec is ignored and NextRun must already be set.
func (s *Scheduler) Schedule(job Job) error {
	if job.ID == "" {
		job.ID = magray.NewID()
	}
	if job.Kind == JobCron {
		schedule, err := s.parser.Parse(job.Spec)
		if err != nil {
			return magray.WrapError(magray.ErrValidationError, err, "invalid cron spec %q", job.Spec)
		}
		job.NextRun = schedule.Next(time.Now())
	}
	if job.NextRun.IsZero() {
		return magray.NewError(magray.ErrValidationError, "job %q has no next run time", job.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := job
	if err := s.persist(&stored); err != nil {
		return err
	}
	s.byID[stored.ID] = &stored
	heap.Push(&s.queue, &stored)
	return nil
}

// Cancel removes a job from the queue and its durable record.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return magray.NewError(magray.ErrValidationError, "job %q not scheduled", id)
	}
	delete(s.byID, id)
	for i, j := range s.queue {
		if j.ID == id {
			heap.Remove(&s.queue, i)
			break
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Delete([]byte(id))
	})
}

// ListDue pops every job whose NextRun is at or before now and that Admit
// approves, re-arming recurring jobs against their next cron fire and
// dropping exhausted one-shot jobs. Jobs Admit rejects are left in the
// queue for the next call.
func (s *Scheduler) ListDue(ctx context.Context, now time.Time, estimate magray.ResourceUsage) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Job
	var deferred []*Job
	for s.queue.Len() > 0 && s.queue[0].NextRun.Before(now.Add(time.Nanosecond)) {
		if ctx.Err() != nil {
			break
		}
		job := heap.Pop(&s.queue).(*Job)
		if job.Disabled {
			continue
		}
		if s.Admit != nil && !s.Admit(estimate) {
			deferred = append(deferred, job)
			continue
		}
		due = append(due, *job)

		if job.Kind == JobCron {
			schedule, err := s.parser.Parse(job.Spec)
			if err == nil {
				rearmed := *job
				rearmed.NextRun = schedule.Next(now)
				if err := s.persist(&rearmed); err != nil {
					return nil, err
				}
				s.byID[rearmed.ID] = &rearmed
				heap.Push(&s.queue, &rearmed)
			}
		} else {
			delete(s.byID, job.ID)
			if err := s.db.Update(func(tx *bbolt.Tx) error {
				return tx.Bucket(jobsBucket).Delete([]byte(job.ID))
			}); err != nil {
				return nil, err
			}
		}
	}
	for _, job := range deferred {
		heap.Push(&s.queue, job)
	}
	return due, nil
}

func (s *Scheduler) persist(job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return magray.WrapError(magray.ErrInternal, err, "marshal job %q", job.ID)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Put([]byte(job.ID), data)
	})
}
