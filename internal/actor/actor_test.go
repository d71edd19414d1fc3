package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailboxSendReceiveRoundTrip(t *testing.T) {
	mb := NewMailbox[int](4)
	require.NoError(t, mb.Send(context.Background(), 7, time.Second))
	require.Equal(t, 7, <-mb.Receive())
}

func TestMailboxSendTimesOutWhenFull(t *testing.T) {
	mb := NewMailbox[int](1)
	require.NoError(t, mb.Send(context.Background(), 1, time.Second))
	err := mb.Send(context.Background(), 2, 20*time.Millisecond)
	require.Error(t, err)
}

func TestSupervisorRestartsOnFailureThenSucceeds(t *testing.T) {
	s := NewSupervisor(5, time.Millisecond, 10*time.Millisecond)
	attempts := 0
	err := s.Run(context.Background(), func(ctx context.Context, heartbeat func()) error {
		attempts++
		heartbeat()
		if attempts < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestSupervisorGivesUpAfterMaxRestarts(t *testing.T) {
	s := NewSupervisor(2, time.Millisecond, 5*time.Millisecond)
	attempts := 0
	err := s.Run(context.Background(), func(ctx context.Context, heartbeat func()) error {
		attempts++
		return errors.New("always fails")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts) // initial try + 2 restarts
}

func TestSupervisorCancelStopsBody(t *testing.T) {
	s := NewSupervisor(5, time.Millisecond, 5*time.Millisecond)
	started := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), func(ctx context.Context, heartbeat func()) error {
			close(started)
			<-ctx.Done()
			return nil
		})
	}()
	<-started
	s.Cancel(CancelUserRequested)
}

func TestSupervisorHealthReflectsHeartbeat(t *testing.T) {
	s := NewSupervisor(1, time.Millisecond, time.Millisecond)
	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), func(ctx context.Context, heartbeat func()) error {
			heartbeat()
			close(done)
			<-ctx.Done()
			return nil
		})
	}()
	<-done
	time.Sleep(10 * time.Millisecond)
	h := s.Health()
	require.True(t, h.Alive)
	require.False(t, h.LastHeartbeat.IsZero())
	s.Cancel(CancelShutdown)
}
