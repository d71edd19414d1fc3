package magray

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := NewError(ErrTimeout, "deadline exceeded for tool %s", "file.list")
	require.True(t, errors.Is(err, KindError(ErrTimeout)))
	require.False(t, errors.Is(err, KindError(ErrInternal)))
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(ErrRuntimeCrash, cause, "")
	require.Equal(t, "boom", err.Message)
	require.ErrorIs(t, err, cause)
}

func TestJoinCompensationFailurePreservesBoth(t *testing.T) {
	original := NewError(ErrRuntimeCrash, "step failed")
	compErr := errors.New("rollback failed")
	joined := JoinCompensationFailure(original, compErr)
	require.ErrorIs(t, joined, original)
	require.ErrorIs(t, joined, compErr)
	var merr *Error
	require.ErrorAs(t, joined, &merr)
	require.Equal(t, ErrSagaCompensationFailed, merr.Kind)
}

func TestDefaultRetryableClassification(t *testing.T) {
	require.True(t, NewError(ErrTimeout, "x").Retryable)
	require.False(t, NewError(ErrPolicyDenied, "x").Retryable)
	require.True(t, NewError(ErrResourceExhausted, "x").WithRetryable(true).Retryable)
}
