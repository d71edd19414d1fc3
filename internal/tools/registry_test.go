package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/policy"
	"github.com/magray/magray/pkg/magray"
)

func TestRegistryLoadAndGet(t *testing.T) {
	r := New()
	spec, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)
	require.Equal(t, magray.ToolName("file.list"), spec.Name)

	got, err := r.Get("file.list")
	require.NoError(t, err)
	require.Equal(t, spec, got)
}

func TestRegistryGetMissingToolReturnsNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("nope")
	require.True(t, magray.KindError(magray.ErrToolNotFound).Is(err))
}

func TestRegistryRequireSignatureRejectsUnsigned(t *testing.T) {
	r := New(WithRequireSignature(true))
	_, err := r.Load([]byte(validManifestJSON))
	require.Error(t, err)
}

func TestRegistryListAndRemove(t *testing.T) {
	r := New()
	_, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)
	require.Len(t, r.List(), 1)

	r.Remove("file.list")
	require.Len(t, r.List(), 0)
}

func TestDispatcherInvokesBuiltin(t *testing.T) {
	r := New()
	_, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)

	d := NewDispatcher(r, nil, nil, nil)
	d.RegisterBuiltin("file.list", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"entries": []string{"a"}}, nil
	})

	out, err := d.Invoke(context.Background(), "file.list", map[string]any{"path": "/tmp"}, []CapabilityGrant{
		{Kind: magray.CapFSRead, Scope: "/tmp"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out["entries"])
}

func TestDispatcherDeniesWithoutCapabilityGrant(t *testing.T) {
	r := New()
	_, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)

	d := NewDispatcher(r, nil, nil, nil)
	d.RegisterBuiltin("file.list", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, nil
	})

	_, err = d.Invoke(context.Background(), "file.list", map[string]any{"path": "/tmp"}, nil)
	require.True(t, magray.KindError(magray.ErrCapabilityDenied).Is(err))
}

func TestDispatcherDeniesToolBlockedByPolicy(t *testing.T) {
	r := New()
	_, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)

	engine := policy.New([]magray.PolicyRule{
		{SubjectKind: magray.SubjectTool, Name: "file.list", Action: magray.PolicyDeny, Reason: "test deny"},
	})
	d := NewDispatcher(r, nil, nil, engine)
	called := false
	d.RegisterBuiltin("file.list", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		called = true
		return nil, nil
	})

	_, err = d.Invoke(context.Background(), "file.list", map[string]any{"path": "/tmp"}, []CapabilityGrant{
		{Kind: magray.CapFSRead, Scope: "/tmp"},
	})
	require.True(t, magray.KindError(magray.ErrPolicyDenied).Is(err))
	require.False(t, called, "policy-denied tool must never reach its runtime")
}

func TestDispatcherBlocksToolOnDefaultAsk(t *testing.T) {
	r := New()
	_, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)

	// No rule matches "file.list" beyond the builtin default, which is Ask.
	d := NewDispatcher(r, nil, nil, policy.New())
	d.RegisterBuiltin("file.list", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, nil
	})

	_, err = d.Invoke(context.Background(), "file.list", map[string]any{"path": "/tmp"}, []CapabilityGrant{
		{Kind: magray.CapFSRead, Scope: "/tmp"},
	})
	require.True(t, magray.KindError(magray.ErrPolicyDenied).Is(err))
}

func TestDispatcherAllowsToolExplicitlyAllowed(t *testing.T) {
	r := New()
	_, err := r.Load([]byte(validManifestJSON))
	require.NoError(t, err)

	engine := policy.New([]magray.PolicyRule{
		{SubjectKind: magray.SubjectTool, Name: "file.list", Action: magray.PolicyAllow, Reason: "test allow"},
	})
	d := NewDispatcher(r, nil, nil, engine)
	d.RegisterBuiltin("file.list", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"entries": []string{"a"}}, nil
	})

	out, err := d.Invoke(context.Background(), "file.list", map[string]any{"path": "/tmp"}, []CapabilityGrant{
		{Kind: magray.CapFSRead, Scope: "/tmp"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out["entries"])
}

func TestDigestVerifierRejectsBadDigest(t *testing.T) {
	v := DigestVerifier{}
	m, err := ParseManifest([]byte(`{"name":"x","version":"1.0.0","runtime":"builtin","signature":{"digest":"wrong"},"limits":{"max_cpu_ms":1,"max_mem_mb":1,"max_wall_ms":1}}`), false)
	require.NoError(t, err)
	require.Error(t, v.Verify(m))
}
