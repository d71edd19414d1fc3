// Package redisq backs agents.Scheduler's admission check with a counter
// shared across every magrayd process pointed at the same Redis instance,
// per SPEC_FULL.md's domain stack table naming github.com/redis/go-redis/v9
// as the scheduler's "job queue / admission cache" dependency. A single
// process's Scheduler already tracks its own queue durably via bbolt; what
// it cannot see is how many jobs its siblings have admitted concurrently,
// which this package supplies as a cluster-wide headroom counter.
package redisq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magray/magray/internal/agents"
	"github.com/magray/magray/pkg/magray"
)

// counterClient is the subset of *redis.Client Admission needs, narrowed
// so tests can substitute an in-process fake instead of a live Redis.
type counterClient interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Decr(ctx context.Context, key string) error
}

type redisCounter struct{ *redis.Client }

func (c redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return c.Client.Incr(ctx, key).Result()
}

func (c redisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.Client.Expire(ctx, key, ttl).Err()
}

func (c redisCounter) Decr(ctx context.Context, key string) error {
	return c.Client.Decr(ctx, key).Err()
}

// Options configures an Admission tracker.
type Options struct {
	Client *redis.Client
	// Key namespaces the shared counter, letting multiple schedulers
	// (e.g. separate job kinds) share one Redis instance without
	// colliding. Defaults to "magray:scheduler:inflight".
	Key string
	// Limit is the maximum number of jobs allowed in flight across the
	// whole cluster at once. Zero means unlimited (Check always admits).
	Limit int64
	// Lease bounds how long an admitted slot counts against Limit before
	// it expires automatically, guarding against a crashed process that
	// incremented the counter but never called Release. Defaults to one
	// minute.
	Lease time.Duration
}

const (
	defaultKey   = "magray:scheduler:inflight"
	defaultLease = time.Minute
)

// Admission tracks cluster-wide in-flight job count in Redis, exposing
// Check as an agents.AdmissionCheck for agents.Scheduler.Admit.
type Admission struct {
	client counterClient
	key    string
	limit  int64
	lease  time.Duration
}

// New constructs an Admission tracker backed by a live Redis client.
func New(opts Options) *Admission {
	return newAdmission(redisCounter{opts.Client}, opts)
}

func newAdmission(client counterClient, opts Options) *Admission {
	key := opts.Key
	if key == "" {
		key = defaultKey
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	return &Admission{client: client, key: key, limit: opts.Limit, lease: lease}
}

// Check implements agents.AdmissionCheck: it increments the shared
// counter and admits the job only if that leaves it at or below Limit,
// rolling back the increment on rejection so it never ratchets upward
// under sustained pressure. The resource estimate itself is not currently
// weighted into the count (every admitted job counts as one slot); a
// resource-weighted variant would need Scheduler.Admit to carry a
// per-call identifier to release against, which agents.AdmissionCheck's
// current signature does not provide.
func (a *Admission) Check(_ magray.ResourceUsage) bool {
	if a.limit <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	count, err := a.client.Incr(ctx, a.key)
	if err != nil {
		// Redis unreachable: fail open rather than stall every job behind
		// a dependency outage the in-process bbolt queue doesn't need.
		return true
	}
	if count == 1 {
		_ = a.client.Expire(ctx, a.key, a.lease)
	}
	if count > a.limit {
		_ = a.client.Decr(ctx, a.key)
		return false
	}
	return true
}

// Release decrements the shared counter for a job that finished before
// its lease expired, freeing its slot for another process immediately
// instead of waiting out the full Lease.
func (a *Admission) Release(ctx context.Context) error {
	if err := a.client.Decr(ctx, a.key); err != nil {
		return fmt.Errorf("redisq: release admission slot: %w", err)
	}
	return nil
}

var _ agents.AdmissionCheck = (*Admission)(nil).Check
