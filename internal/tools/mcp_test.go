package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMCPConnectionHappyPathLifecycle(t *testing.T) {
	c := NewMCPConnection("srv", time.Second, time.Second, time.Second)
	require.Equal(t, ConnConnecting, c.State())

	require.NoError(t, c.Transition(ConnReady))
	require.NoError(t, c.Transition(ConnInvoking))
	require.NoError(t, c.Transition(ConnIdle))
	require.NoError(t, c.Transition(ConnReady))
}

func TestMCPConnectionRejectsInvalidTransition(t *testing.T) {
	c := NewMCPConnection("srv", time.Second, time.Second, time.Second)
	err := c.Transition(ConnInvoking)
	require.Error(t, err)
	require.Equal(t, ConnConnecting, c.State())
}

func TestMCPConnectionHeartbeatFailureTerminates(t *testing.T) {
	c := NewMCPConnection("srv", time.Second, 50*time.Millisecond, time.Second)
	require.NoError(t, c.Transition(ConnReady))

	err := c.RunHeartbeat(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, ConnTerminated, c.State())
}

func TestMCPConnectionHeartbeatSuccessReturnsToReady(t *testing.T) {
	c := NewMCPConnection("srv", time.Second, time.Second, time.Second)
	require.NoError(t, c.Transition(ConnReady))

	err := c.RunHeartbeat(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, ConnReady, c.State())
}

func TestMCPConnectionDrainTerminates(t *testing.T) {
	c := NewMCPConnection("srv", time.Second, time.Second, 50*time.Millisecond)
	require.NoError(t, c.Transition(ConnReady))

	err := c.Drain(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, ConnTerminated, c.State())
}

func TestMCPConnectionTimeoutsClamped(t *testing.T) {
	c := NewMCPConnection("srv", 0, 10*time.Minute, 10*time.Minute)
	require.Equal(t, minHeartbeatInterval, c.heartbeatEvery)
	require.Equal(t, maxHeartbeatInterval, c.heartbeatTimeout)
	require.Equal(t, maxDrainTimeout, c.drainTimeout)
}
