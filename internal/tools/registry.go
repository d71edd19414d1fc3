package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/magray/magray/internal/policy"
	"github.com/magray/magray/internal/telemetry"
	"github.com/magray/magray/pkg/magray"
)

// Verifier checks a manifest's signature against a trust root. Swappable so
// tests can use a stub while production wires a real key-store-backed
// implementation.
type Verifier interface {
	Verify(manifest *Manifest) error
}

// NoopVerifier accepts every signature; used when signing is not required.
type NoopVerifier struct{}

// Verify always succeeds.
func (NoopVerifier) Verify(*Manifest) error { return nil }

// DigestVerifier checks that SignatureInfo.Digest matches the sha256 of the
// manifest's entry path string, a stand-in for a real content-addressed
// signature scheme until a signing authority is wired in.
type DigestVerifier struct{}

// Verify returns SignatureInvalid if the manifest has no signature or its
// digest does not match.
func (DigestVerifier) Verify(m *Manifest) error {
	if m.Signature == nil {
		return magray.NewError(magray.ErrSignatureInvalid, "tool %q has no signature", m.Name)
	}
	sum := sha256.Sum256([]byte(m.Entry))
	want := hex.EncodeToString(sum[:])
	if m.Signature.Digest != want {
		return magray.NewError(magray.ErrSignatureInvalid, "tool %q signature digest mismatch", m.Name)
	}
	return nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithVerifier installs a non-default Verifier.
func WithVerifier(v Verifier) Option {
	return func(r *Registry) { r.verifier = v }
}

// WithRequireSignature toggles whether Load rejects unsigned manifests.
func WithRequireSignature(require bool) Option {
	return func(r *Registry) { r.requireSignature = require }
}

// Registry is the in-memory catalog of loaded tool specs, adapted from the
// teacher's runtime/registry.Manager (mutex-guarded map, functional
// options) but generalized from MCP-registry discovery to local manifest
// loading and signature verification per spec.md §4.3.
type Registry struct {
	mu               sync.RWMutex
	specs            map[magray.ToolName]*entry
	verifier         Verifier
	requireSignature bool
}

type entry struct {
	manifest *Manifest
	spec     magray.ToolSpec
}

// New constructs an empty Registry. Defaults to NoopVerifier and no
// signature requirement; override with WithVerifier/WithRequireSignature.
func New(opts ...Option) *Registry {
	r := &Registry{
		specs:    make(map[magray.ToolName]*entry),
		verifier: NoopVerifier{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load parses, validates, and (if configured) verifies a tool.json payload,
// then registers it. Re-loading a tool by the same name replaces the prior
// entry — callers wanting atomic catalog swaps should build a new Registry
// and hand it to consumers rather than mutating a shared one mid-flight.
func (r *Registry) Load(data []byte) (magray.ToolSpec, error) {
	m, err := ParseManifest(data, r.requireSignature)
	if err != nil {
		return magray.ToolSpec{}, err
	}
	if r.requireSignature {
		if err := r.verifier.Verify(m); err != nil {
			return magray.ToolSpec{}, err
		}
	}
	spec := m.ToSpec()

	r.mu.Lock()
	r.specs[spec.Name] = &entry{manifest: m, spec: spec}
	r.mu.Unlock()
	return spec, nil
}

// Get returns the ToolSpec registered under name, or ErrToolNotFound.
func (r *Registry) Get(name magray.ToolName) (magray.ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.specs[name]
	if !ok {
		return magray.ToolSpec{}, magray.NewError(magray.ErrToolNotFound, "tool %q not registered", name)
	}
	return e.spec, nil
}

// Manifest returns the raw Manifest registered under name, used by
// dispatchers that need Entry/Runtime details beyond the public ToolSpec.
func (r *Registry) Manifest(name magray.ToolName) (*Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.specs[name]
	if !ok {
		return nil, magray.NewError(magray.ErrToolNotFound, "tool %q not registered", name)
	}
	return e.manifest, nil
}

// List returns every registered ToolSpec, used by the Planner to resolve
// tool candidates and by the IntentAnalyzer when suggesting tools.
func (r *Registry) List() []magray.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]magray.ToolSpec, 0, len(r.specs))
	for _, e := range r.specs {
		out = append(out, e.spec)
	}
	return out
}

// Remove deletes a registered tool, used for unloading a revoked or
// unhealthy tool out of the catalog.
func (r *Registry) Remove(name magray.ToolName) {
	r.mu.Lock()
	delete(r.specs, name)
	r.mu.Unlock()
}

// Dispatcher executes a registered tool by name, routing to whichever
// runtime (wasm, subprocess, builtin) its manifest declares.
type Dispatcher struct {
	registry *Registry
	wasm     *WasmRuntime
	sub      *SubprocessRuntime
	policy   *policy.Engine
	builtins map[magray.ToolName]BuiltinFunc
}

// BuiltinFunc implements a RuntimeBuiltin tool in-process.
type BuiltinFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// NewDispatcher wires a Registry to the runtimes capable of executing its
// tools, and to the Policy Engine gating every call (spec.md §2/§4.2
// invariant 3: a tool only ever runs if policy_decide(tool, args) = Allow).
// Either runtime may be nil if the deployment doesn't support it; invoking
// a tool whose manifest needs a nil runtime returns RuntimeCrash. engine
// may be nil only for tests exercising runtime dispatch in isolation from
// policy; production wiring always supplies one (see cmd/magrayd).
func NewDispatcher(registry *Registry, wasm *WasmRuntime, sub *SubprocessRuntime, engine *policy.Engine) *Dispatcher {
	return &Dispatcher{registry: registry, wasm: wasm, sub: sub, policy: engine, builtins: make(map[magray.ToolName]BuiltinFunc)}
}

// RegisterBuiltin installs an in-process implementation for a
// RuntimeBuiltin-declared tool.
func (d *Dispatcher) RegisterBuiltin(name magray.ToolName, fn BuiltinFunc) {
	d.builtins[name] = fn
}

// Invoke validates args against the manifest schema, checks capability
// grants, then dispatches to the manifest's declared runtime, recording
// magray_tool_invocations_total/magray_tool_invocation_duration_seconds
// for every call.
func (d *Dispatcher) Invoke(ctx context.Context, name magray.ToolName, args map[string]any, grants []CapabilityGrant) (map[string]any, error) {
	start := time.Now()
	result, err := d.invoke(ctx, name, args, grants)
	telemetry.ToolInvocationDurationSeconds.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	telemetry.ToolInvocationsTotal.WithLabelValues(string(name), outcomeFor(err)).Inc()
	return result, err
}

func outcomeFor(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, magray.KindError(magray.ErrPolicyDenied)):
		return "denied"
	case errors.Is(err, magray.KindError(magray.ErrTimeout)):
		return "timeout"
	default:
		return "error"
	}
}

func (d *Dispatcher) invoke(ctx context.Context, name magray.ToolName, args map[string]any, grants []CapabilityGrant) (map[string]any, error) {
	m, err := d.registry.Manifest(name)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateArgs(args); err != nil {
		return nil, err
	}
	if err := d.checkPolicy(ctx, name, args); err != nil {
		return nil, err
	}
	spec := m.ToSpec()
	if err := CheckCapabilities(spec, grants); err != nil {
		return nil, err
	}

	switch m.Runtime {
	case magray.RuntimeBuiltin:
		fn, ok := d.builtins[name]
		if !ok {
			return nil, magray.NewError(magray.ErrToolNotFound, "no builtin implementation registered for %q", name)
		}
		return fn(ctx, args)
	case magray.RuntimeWasm:
		if d.wasm == nil {
			return nil, magray.NewError(magray.ErrRuntimeCrash, "wasm runtime not configured but tool %q requires it", name)
		}
		return d.wasm.Invoke(ctx, m, args)
	case magray.RuntimeSubprocess:
		if d.sub == nil {
			return nil, magray.NewError(magray.ErrRuntimeCrash, "subprocess runtime not configured but tool %q requires it", name)
		}
		return d.sub.Invoke(ctx, m, args)
	default:
		return nil, magray.NewError(magray.ErrManifestInvalid, "tool %q has unsupported runtime %q", name, m.Runtime)
	}
}

// checkPolicy consults the Policy Engine before every tool invocation, per
// spec.md §4.2/§8 invariant 3: a tool only ever runs if
// policy_decide(tool, args) = Allow. Deny blocks the call outright; Ask
// also blocks it here, since Dispatcher has no interactive confirmation
// path of its own (unlike Deny, Ask means "a human could approve this",
// but nobody is being asked at this layer) — both read as "the invocation
// is absent" from the invariant's point of view. A nil engine skips the
// check entirely, for tests exercising runtime dispatch in isolation.
func (d *Dispatcher) checkPolicy(ctx context.Context, name magray.ToolName, args map[string]any) error {
	if d.policy == nil {
		return nil
	}
	decision, err := d.policy.Decide(ctx, policy.Input{
		SubjectKind: magray.SubjectTool,
		Name:        string(name),
		Args:        stringifyArgs(args),
	})
	if err != nil {
		return err
	}
	if decision.Action != magray.PolicyAllow {
		return magray.NewError(magray.ErrPolicyDenied, "tool %q policy decision is %s (rule %s: %s)", name, decision.Action, decision.RuleID, decision.Reason)
	}
	return nil
}

// stringifyArgs renders invocation args as policy.Input.Args expects:
// flat string values for arg-constraint matching (when_contains_args,
// web.* domain extraction). Non-string values render via fmt.Sprint so
// numbers and bools still match a configured string constraint.
func stringifyArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
