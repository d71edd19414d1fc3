package redisq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/pkg/magray"
)

// fakeCounter implements counterClient entirely in process.
type fakeCounter struct {
	values map[string]int64
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: make(map[string]int64)}
}

func (f *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	f.values[key]++
	return f.values[key], nil
}

func (f *fakeCounter) Expire(context.Context, string, time.Duration) error { return nil }

func (f *fakeCounter) Decr(_ context.Context, key string) error {
	f.values[key]--
	return nil
}

var _ counterClient = (*fakeCounter)(nil)

func TestAdmissionRejectsOverLimit(t *testing.T) {
	fc := newFakeCounter()
	a := newAdmission(fc, Options{Limit: 2})

	require.True(t, a.Check(magray.ResourceUsage{}))
	require.True(t, a.Check(magray.ResourceUsage{}))
	require.False(t, a.Check(magray.ResourceUsage{}))

	// rejection rolls back its own increment, so the count stays at the limit
	require.Equal(t, int64(2), fc.values[defaultKey])
}

func TestAdmissionZeroLimitAlwaysAllows(t *testing.T) {
	a := newAdmission(newFakeCounter(), Options{})
	for i := 0; i < 5; i++ {
		require.True(t, a.Check(magray.ResourceUsage{}))
	}
}

func TestAdmissionReleaseFreesSlot(t *testing.T) {
	fc := newFakeCounter()
	a := newAdmission(fc, Options{Limit: 1})

	require.True(t, a.Check(magray.ResourceUsage{}))
	require.False(t, a.Check(magray.ResourceUsage{}))

	require.NoError(t, a.Release(context.Background()))
	require.True(t, a.Check(magray.ResourceUsage{}))
}
