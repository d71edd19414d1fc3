// Client wiring for pulsebus: goa.design/pulse/streaming narrowed to the
// single operation Sink.Publish needs. Grounded on the teacher's
// features/stream/pulse/clients/pulse package (stream open via
// streaming.NewStream, event append via Stream.Add), but that package also
// builds consumer-group/sink-lifecycle/stream-teardown machinery for its
// subscriber side. Sink only ever appends to a stream — whatever MAGRAY
// process reads events back does so as its own Pulse consumer, not through
// this bus — so none of that machinery has a caller here and it is not
// carried over.
package pulsebus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// Client opens (or creates) a named Pulse stream for publishing.
type Client interface {
	Stream(name string, opts ...streamopts.Stream) (Stream, error)
}

// Stream appends events to one Pulse stream.
type Stream interface {
	Add(ctx context.Context, event string, payload []byte) (string, error)
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Redis backs the Pulse streams. Required.
	Redis *redis.Client
	// StreamMaxLen bounds entries kept per stream; zero uses Pulse defaults.
	StreamMaxLen int
	// StreamOptions returns extra per-stream options, invoked once per
	// distinct stream name Stream opens.
	StreamOptions func(name string) []streamopts.Stream
	// OperationTimeout bounds each Add call. Zero means no timeout.
	OperationTimeout time.Duration
}

// NewClient builds a Client backed by a live Redis connection.
func NewClient(opts ClientOptions) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("pulsebus: redis client is required")
	}
	return &redisClient{
		redis:        opts.Redis,
		maxLen:       opts.StreamMaxLen,
		streamOptsFn: opts.StreamOptions,
		timeout:      opts.OperationTimeout,
	}, nil
}

type redisClient struct {
	redis        *redis.Client
	maxLen       int
	streamOptsFn func(name string) []streamopts.Stream
	timeout      time.Duration
}

func (c *redisClient) Stream(name string, opts ...streamopts.Stream) (Stream, error) {
	if name == "" {
		return nil, errors.New("pulsebus: stream name is required")
	}
	var streamOptions []streamopts.Stream
	if c.maxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(c.maxLen))
	}
	if c.streamOptsFn != nil {
		streamOptions = append(streamOptions, c.streamOptsFn(name)...)
	}
	streamOptions = append(streamOptions, opts...)
	str, err := streaming.NewStream(name, c.redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("pulsebus: open stream %q: %w", name, err)
	}
	return &redisStream{stream: str, timeout: c.timeout}, nil
}

type redisStream struct {
	stream  *streaming.Stream
	timeout time.Duration
}

func (s *redisStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	if event == "" {
		return "", errors.New("pulsebus: event name is required")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	id, err := s.stream.Add(ctx, event, payload)
	if err != nil {
		return "", fmt.Errorf("pulsebus: add to stream %q: %w", event, err)
	}
	return id, nil
}
