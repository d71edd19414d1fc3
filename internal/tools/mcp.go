package tools

import (
	"context"
	"sync"
	"time"

	"github.com/magray/magray/pkg/magray"
)

// ConnState is a state in the MCP server connection lifecycle described in
// spec.md §4.3/§6: Connecting → Ready → Invoking → Idle → Heartbeat →
// Draining → Terminated. Idle and Invoking both return to Ready; Heartbeat
// failure and Draining both lead to Terminated.
type ConnState string

// Connection lifecycle states.
const (
	ConnConnecting ConnState = "connecting"
	ConnReady      ConnState = "ready"
	ConnInvoking   ConnState = "invoking"
	ConnIdle       ConnState = "idle"
	ConnHeartbeat  ConnState = "heartbeat"
	ConnDraining   ConnState = "draining"
	ConnTerminated ConnState = "terminated"
)

var connTransitions = map[ConnState]map[ConnState]bool{
	ConnConnecting: {ConnReady: true, ConnTerminated: true},
	ConnReady:      {ConnInvoking: true, ConnHeartbeat: true, ConnDraining: true, ConnTerminated: true},
	ConnInvoking:   {ConnReady: true, ConnIdle: true, ConnTerminated: true},
	ConnIdle:       {ConnReady: true, ConnHeartbeat: true, ConnDraining: true},
	ConnHeartbeat:  {ConnReady: true, ConnTerminated: true},
	ConnDraining:   {ConnTerminated: true},
	ConnTerminated: {},
}

// MCPConnection tracks the lifecycle state of one connection to an
// MCP-style tool server, clamping heartbeat and drain timeouts to the
// bounds spec.md §6 requires so a misconfigured manifest cannot wedge the
// connection open indefinitely or make it flap.
type MCPConnection struct {
	Name string

	mu               sync.Mutex
	state            ConnState
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
	drainTimeout     time.Duration
	onTransition     func(from, to ConnState)
}

// Heartbeat bounds mirror spec.md §6's MAGRAY_HEARTBEAT_INTERVAL range and
// internal/config's minHeartbeatInterval/maxHeartbeatInterval. Duplicated
// rather than imported: internal/config imports internal/agents, which
// imports internal/tools, so internal/tools importing internal/config
// back would be a cycle.
const (
	minHeartbeatInterval = 10 * time.Second
	maxHeartbeatInterval = 10 * time.Minute
	minDrainTimeout      = time.Second
	maxDrainTimeout      = 2 * time.Minute
)

// NewMCPConnection constructs a connection in the Connecting state with
// clamped heartbeat/drain timeouts.
func NewMCPConnection(name string, heartbeatEvery, heartbeatTimeout, drainTimeout time.Duration) *MCPConnection {
	return &MCPConnection{
		Name:             name,
		state:            ConnConnecting,
		heartbeatEvery:   clamp(heartbeatEvery, minHeartbeatInterval, maxHeartbeatInterval),
		heartbeatTimeout: clamp(heartbeatTimeout, minHeartbeatInterval, maxHeartbeatInterval),
		drainTimeout:     clamp(drainTimeout, minDrainTimeout, maxDrainTimeout),
	}
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d <= 0 {
		return lo
	}
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// OnTransition installs a callback invoked on every successful state
// change, used to publish tool.invoked/tool.result style events.
func (c *MCPConnection) OnTransition(fn func(from, to ConnState)) {
	c.mu.Lock()
	c.onTransition = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *MCPConnection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transition moves the connection to `to`, returning RuntimeCrash if the
// transition isn't in the allowed table.
func (c *MCPConnection) Transition(to ConnState) error {
	c.mu.Lock()
	from := c.state
	allowed := connTransitions[from][to]
	if allowed {
		c.state = to
	}
	cb := c.onTransition
	c.mu.Unlock()

	if !allowed {
		return magray.NewError(magray.ErrRuntimeCrash, "invalid MCP connection transition %s -> %s for %q", from, to, c.Name)
	}
	if cb != nil {
		cb(from, to)
	}
	return nil
}

// RunHeartbeat transitions Ready/Idle -> Heartbeat, invokes ping, and
// transitions back to Ready on success or Terminated on failure/timeout.
func (c *MCPConnection) RunHeartbeat(ctx context.Context, ping func(context.Context) error) error {
	if err := c.Transition(ConnHeartbeat); err != nil {
		return err
	}
	hbCtx, cancel := context.WithTimeout(ctx, c.heartbeatTimeout)
	defer cancel()

	err := ping(hbCtx)
	if err != nil {
		_ = c.Transition(ConnTerminated)
		return magray.WrapError(magray.ErrHeartbeatFailure, err, "heartbeat failed for %q", c.Name)
	}
	return c.Transition(ConnReady)
}

// Drain transitions Ready/Idle -> Draining -> Terminated, giving in-flight
// invocations up to the clamped drain timeout before forcing termination.
func (c *MCPConnection) Drain(ctx context.Context, awaitInflight func(context.Context) error) error {
	if err := c.Transition(ConnDraining); err != nil {
		return err
	}
	drainCtx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()
	if awaitInflight != nil {
		_ = awaitInflight(drainCtx)
	}
	return c.Transition(ConnTerminated)
}
