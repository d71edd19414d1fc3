// Package pulsebus adapts goa.design/pulse's streaming client into an
// optional distributed backend for internal/bus.Bus, so a MAGRAY deployment
// that already runs Pulse/Redis streams for its front-end can fan the event
// bus out across processes instead of keeping it confined to a single
// address space. Services build a Redis client, pass it to NewClient, and
// hand the resulting Client to NewSink.
package pulsebus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/magray/magray/pkg/magray"
)

// Options configures a Sink.
type Options struct {
	// Client is the Pulse client used to publish events. Required.
	Client Client
	// StreamID derives the target Pulse stream name from an event. Defaults
	// to "magray/<topic>" so each topic gets its own Pulse stream and
	// consumer groups can subscribe per topic without filtering server-side.
	StreamID func(magray.Event) string
}

// Sink publishes bus events onto Pulse streams so remote subscribers (other
// MAGRAY processes, external front-ends) can consume them over Redis
// streams rather than an in-process channel.
type Sink struct {
	client   Client
	streamID func(magray.Event) string
}

// NewSink constructs a Sink from the given Pulse client options.
func NewSink(opts Options) *Sink {
	streamID := opts.StreamID
	if streamID == nil {
		streamID = func(e magray.Event) string { return "magray/" + string(e.Topic) }
	}
	return &Sink{client: opts.Client, streamID: streamID}
}

// Envelope is the JSON wire shape stored in each Pulse stream entry.
type Envelope struct {
	Topic         string            `json:"topic"`
	CorrelationID string            `json:"correlation_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Payload       any               `json:"payload,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// Publish serializes event as a JSON Envelope and adds it to the Pulse
// stream named by Options.StreamID. The Pulse stream itself provides the
// bounded, multi-consumer delivery that Bus.Options.QueueSize models for
// in-process subscribers.
func (s *Sink) Publish(ctx context.Context, event magray.Event) error {
	data, err := json.Marshal(Envelope{
		Topic:         string(event.Topic),
		CorrelationID: event.CorrelationID,
		Timestamp:     event.Timestamp,
		Payload:       event.Payload,
		Labels:        event.Labels,
	})
	if err != nil {
		return magray.WrapError(magray.ErrInternal, err, "marshal event for pulse stream")
	}
	name := s.streamID(event)
	stream, err := s.client.Stream(name)
	if err != nil {
		return magray.WrapError(magray.ErrNetworkError, err, "open pulse stream %q", name)
	}
	if _, err := stream.Add(ctx, string(event.Topic), data); err != nil {
		return magray.WrapError(magray.ErrNetworkError, err, "publish to pulse stream %q", name)
	}
	return nil
}
