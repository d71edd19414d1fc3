package magray

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error taxonomy from spec.md §7. Every Error
// carries exactly one Kind plus a Retryable bit; classification happens at
// the boundary that first detects the failure (sandbox, registry, policy
// engine, bus) and is preserved through the cause chain.
type ErrorKind string

// ErrorKind variants (spec.md §7).
const (
	ErrValidationError        ErrorKind = "ValidationError"
	ErrPolicyDenied           ErrorKind = "PolicyDenied"
	ErrCapabilityDenied       ErrorKind = "CapabilityDenied"
	ErrToolNotFound           ErrorKind = "ToolNotFound"
	ErrResourceExhausted      ErrorKind = "ResourceExhausted"
	ErrTimeout                ErrorKind = "Timeout"
	ErrHeartbeatFailure       ErrorKind = "HeartbeatFailure"
	ErrSignatureInvalid       ErrorKind = "SignatureInvalid"
	ErrManifestInvalid        ErrorKind = "ManifestInvalid"
	ErrSandboxViolation       ErrorKind = "SandboxViolation"
	ErrNetworkError           ErrorKind = "NetworkError"
	ErrRuntimeCrash           ErrorKind = "RuntimeCrash"
	ErrSagaCompensationFailed ErrorKind = "SagaCompensationFailed"
	ErrAgentUnavailable       ErrorKind = "AgentUnavailable"
	ErrBackpressureTimeout    ErrorKind = "BackpressureTimeout"
	ErrInternal               ErrorKind = "Internal"
)

// defaultRetryable classifies each ErrorKind's default retryability; callers
// may still override via WithRetryable when a specific occurrence disagrees
// with the class default (for example, a Timeout exceeding the step's
// remaining attempt budget).
var defaultRetryable = map[ErrorKind]bool{
	ErrValidationError:        false,
	ErrPolicyDenied:           false,
	ErrCapabilityDenied:       false,
	ErrToolNotFound:           false,
	ErrResourceExhausted:      true,
	ErrTimeout:                true,
	ErrHeartbeatFailure:       true,
	ErrSignatureInvalid:       false,
	ErrManifestInvalid:        false,
	ErrSandboxViolation:       false,
	ErrNetworkError:           true,
	ErrRuntimeCrash:           true,
	ErrSagaCompensationFailed: false,
	ErrAgentUnavailable:       false,
	ErrBackpressureTimeout:    true,
	ErrInternal:               false,
}

// Error is the structured failure type used across every MAGRAY component.
// It preserves a cause chain via Unwrap so errors.Is/As compose the way the
// teacher's toolerrors.ToolError does, while adding the classification bits
// spec.md §7 requires on every failure.
type Error struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Cause     error
}

// NewError constructs an Error of the given kind with a formatted message
// and the kind's default retryability.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: defaultRetryable[kind],
	}
}

// WrapError constructs an Error of the given kind that wraps cause, copying
// cause's message if no explicit message is supplied. Saga compensation
// failures use this to join the original error with the compensation
// failure without masking either (spec.md §7: "compensation failures do
// not mask the original error").
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:      kind,
		Message:   msg,
		Retryable: defaultRetryable[kind],
		Cause:     cause,
	}
}

// WithRetryable returns e with Retryable overridden, for call sites that
// know a specific occurrence's retryability differs from the kind default.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause chain for errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error by Kind so errors.Is(err, ErrTimeout) style
// checks work against a bare ErrorKind sentinel constructed via KindError.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindError returns a sentinel *Error carrying only Kind, suitable for use
// with errors.Is(err, magray.KindError(magray.ErrTimeout)).
func KindError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

// JoinCompensationFailure combines an original execution error with a
// failure encountered while running its compensation, preserving both via
// errors.Join so neither is lost to the caller.
func JoinCompensationFailure(original, compensation error) error {
	return WrapError(ErrSagaCompensationFailed, errors.Join(original, compensation),
		"saga compensation failed while rolling back")
}
