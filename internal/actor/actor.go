// Package actor implements the mailbox-actor concurrency model described in
// spec.md §5: each Agent Runtime role runs as an independent goroutine
// reading a bounded mailbox, supervised with exponential backoff restarts,
// a resource budget, and cooperative cancellation. Grounded on the
// teacher's runtime/agent/runtime workflow loop (restart/backoff shape) and
// runtime/agent/interrupt.Controller (signal-channel cancellation), adapted
// from Temporal-workflow signals to plain goroutines/channels since MAGRAY
// runs actors in-process rather than inside a durable workflow engine.
package actor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/magray/magray/pkg/magray"
)

// Mailbox is the bounded inbox an Actor reads from. Overflow (a full
// mailbox on Send) surfaces as ErrBackpressureTimeout rather than blocking
// the sender indefinitely.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox constructs a Mailbox with the given buffer size.
func NewMailbox[T any](size int) *Mailbox[T] {
	if size <= 0 {
		size = 64
	}
	return &Mailbox[T]{ch: make(chan T, size)}
}

// Send enqueues msg, waiting up to the given timeout before giving up.
func (m *Mailbox[T]) Send(ctx context.Context, msg T, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	select {
	case m.ch <- msg:
		return nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m.ch <- msg:
		return nil
	case <-timer.C:
		return magray.NewError(magray.ErrBackpressureTimeout, "mailbox full after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive exposes the mailbox's read side for an Actor's run loop.
func (m *Mailbox[T]) Receive() <-chan T { return m.ch }

// Health snapshots an Actor's liveness, last heartbeat time, and current
// load for the orchestrator's aggregate health view (spec.md §5/§6).
type Health struct {
	Alive         bool
	LastHeartbeat time.Time
	Load          int
	Restarts      int
}

// CancelReason explains why an Actor's work was cancelled.
type CancelReason string

// CancelReason variants.
const (
	CancelUserRequested  CancelReason = "user_requested"
	CancelBudgetExceeded CancelReason = "budget_exceeded"
	CancelSupervisorKill CancelReason = "supervisor_kill"
	CancelShutdown       CancelReason = "shutdown"
)

// Supervisor restarts a failing Actor body with exponential backoff up to
// MaxRestarts, after which it gives up and reports AgentUnavailable. The
// backoff schedule is built on github.com/cenkalti/backoff/v4, wired in as
// the DOMAIN STACK retry/backoff library per SPEC_FULL.md §8.
type Supervisor struct {
	MaxRestarts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	mu       sync.Mutex
	health   Health
	cancelFn context.CancelCauseFunc
}

// NewSupervisor constructs a Supervisor with the given restart policy.
func NewSupervisor(maxRestarts int, initialInterval, maxInterval time.Duration) *Supervisor {
	if maxRestarts <= 0 {
		maxRestarts = 5
	}
	if initialInterval <= 0 {
		initialInterval = 200 * time.Millisecond
	}
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &Supervisor{MaxRestarts: maxRestarts, InitialInterval: initialInterval, MaxInterval: maxInterval}
}

// Health returns a snapshot of the supervised actor's current state.
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Cancel requests cooperative cancellation of the running body with the
// given reason, observable by the body via ctx.Err()/context.Cause(ctx).
func (s *Supervisor) Cancel(reason CancelReason) {
	s.mu.Lock()
	cancel := s.cancelFn
	s.mu.Unlock()
	if cancel != nil {
		cancel(magray.NewError(magray.ErrAgentUnavailable, "actor cancelled: %s", reason))
	}
}

// Run supervises body, restarting it with exponential backoff whenever it
// returns a non-nil error, until ctx is cancelled, body returns nil
// (graceful stop), or MaxRestarts is exceeded (reported as
// AgentUnavailable). body receives a derived context it must honor for
// cancellation and a heartbeat func it should call periodically so Health
// reflects liveness.
func (s *Supervisor) Run(ctx context.Context, body func(ctx context.Context, heartbeat func()) error) error {
	restarts := 0
	for {
		runCtx, cancel := context.WithCancelCause(ctx)
		s.mu.Lock()
		s.cancelFn = cancel
		s.health.Alive = true
		s.mu.Unlock()

		heartbeat := func() {
			s.mu.Lock()
			s.health.LastHeartbeat = time.Now()
			s.mu.Unlock()
		}

		err := body(runCtx, heartbeat)
		cancel(nil)

		s.mu.Lock()
		s.health.Alive = false
		s.mu.Unlock()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		restarts++
		s.mu.Lock()
		s.health.Restarts = restarts
		s.mu.Unlock()
		if restarts > s.MaxRestarts {
			return magray.WrapError(magray.ErrAgentUnavailable, err, "actor exceeded %d restarts", s.MaxRestarts)
		}

		wait := s.backoffFor(restarts)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) backoffFor(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxInterval = s.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
