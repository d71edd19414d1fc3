// Package bus implements the typed event bus described in spec.md §4.1: a
// decoupling layer that gives every MAGRAY component non-blocking (up to a
// bounded wait) publish, independent per-subscriber bounded queues, and
// per-topic, per-subscriber FIFO delivery. It is grounded on the teacher's
// runtime/agent/stream package (typed Event envelope, Sink abstraction) and
// features/stream/pulse (bounded delivery with backpressure semantics);
// unlike the teacher's stream package, which is one-shot per run, Bus is a
// long-lived, multi-topic broker shared by every agent and the orchestrator.
package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/magray/magray/pkg/magray"
)

// Options configures a Bus.
type Options struct {
	// QueueSize bounds each subscriber's delivery queue. Zero selects a
	// sensible default (256).
	QueueSize int
	// PublishWait bounds how long Publish blocks waiting for a full
	// subscriber queue to drain before that subscriber is considered
	// backpressured. Zero selects a default of 2s.
	PublishWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.PublishWait <= 0 {
		o.PublishWait = 2 * time.Second
	}
	return o
}

// Bus is a typed pub/sub broker with bounded per-subscriber queues.
// Publish delivers to every Subscription whose pattern matches Topic;
// a full subscriber queue makes Publish wait up to Options.PublishWait
// before returning ErrBackpressureTimeout for that publish, so one slow
// subscriber cannot permanently wedge the bus, but also cannot silently
// starve without surfacing an error to the publisher.
type Bus struct {
	opts Options

	mu   sync.RWMutex
	subs map[int64]*Subscription
	next int64
}

// New constructs a Bus with the given options.
func New(opts Options) *Bus {
	return &Bus{
		opts: opts.withDefaults(),
		subs: make(map[int64]*Subscription),
	}
}

// Subscription is an independent, bounded delivery queue for events whose
// topic matches Pattern. Slow subscribers never block unrelated ones:
// each Subscription owns its own channel and goroutine-free buffer.
type Subscription struct {
	id      int64
	pattern string
	ch      chan magray.Event
	bus     *Bus
	closed  bool
	mu      sync.Mutex
}

// Events returns the channel subscribers should range over to receive
// delivered events in FIFO order.
func (s *Subscription) Events() <-chan magray.Event {
	return s.ch
}

// Close unregisters the subscription and stops further delivery. Any
// buffered-but-undelivered events are surfaced as a single TopicLag event
// carrying the drop count (spec.md §4.1: "dropped events on subscriber
// close are surfaced as a single lag event").
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.ch)
	s.mu.Unlock()

	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	close(s.ch)

	if dropped > 0 {
		s.bus.publishLag(s.pattern, dropped)
	}
}

// Subscribe creates a new Subscription whose queue receives every event
// published to a topic matching pattern. pattern may end in "*" to match
// any topic sharing the given dot-separated prefix (e.g. "intent.*"
// matches "intent.analyzed"); an exact pattern with no trailing "*" matches
// only that literal topic.
func (b *Bus) Subscribe(pattern string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub := &Subscription{
		id:      b.next,
		pattern: pattern,
		ch:      make(chan magray.Event, b.opts.QueueSize),
		bus:     b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers event to every matching subscription. It returns
// ErrBackpressureTimeout if any one matching subscriber's queue was still
// full after Options.PublishWait elapsed; delivery to other, non-full
// subscribers still completes. Per-topic, per-subscriber ordering is FIFO:
// Publish enqueues to each matching subscriber's channel in the same
// sequence events are published, and channels preserve send order.
func (b *Bus) Publish(ctx context.Context, event magray.Event) error {
	b.mu.RLock()
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if topicMatches(sub.pattern, string(event.Topic)) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	var backpressured bool
	for _, sub := range matched {
		if !b.deliver(ctx, sub, event) {
			backpressured = true
		}
	}
	if backpressured {
		return magray.NewError(magray.ErrBackpressureTimeout,
			"publish to topic %q timed out waiting for a full subscriber queue", event.Topic)
	}
	return nil
}

// deliver attempts to enqueue event on sub's channel, waiting up to
// Options.PublishWait. It never blocks past ctx's own deadline either.
// Policy and health topics never shed load silently: callers that care
// about guaranteed delivery for those topics should treat a false return
// as fatal rather than dropping, per spec.md §5 ("never policy/health
// events" are dropped by the bus itself — Bus does not drop; it reports
// backpressure and leaves the shedding decision to the caller).
func (b *Bus) deliver(ctx context.Context, sub *Subscription, event magray.Event) bool {
	select {
	case sub.ch <- event:
		return true
	default:
	}

	timer := time.NewTimer(b.opts.PublishWait)
	defer timer.Stop()
	select {
	case sub.ch <- event:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *Bus) publishLag(pattern string, dropped int) {
	_ = b.Publish(context.Background(), magray.Event{
		Topic:     magray.TopicLag,
		Timestamp: time.Now(),
		Payload: LagPayload{
			Pattern: pattern,
			Dropped: dropped,
		},
	})
}

// LagPayload is the payload of a TopicLag event emitted when a subscriber
// is closed with undelivered events still buffered.
type LagPayload struct {
	Pattern string
	Dropped int
}

// topicMatches reports whether topic satisfies pattern. A pattern ending
// in ".*" matches any topic sharing its prefix; "*" alone matches every
// topic; otherwise pattern must equal topic exactly.
func topicMatches(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}
