package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/pkg/magray"
)

const validManifestJSON = `{
	"name": "file.list",
	"version": "1.0.0",
	"runtime": "builtin",
	"capabilities": [{"kind": "fs.read", "scope": "/tmp"}],
	"schema": {"type": "object", "properties": {"path": {"type": "string"}}, "required": ["path"]},
	"limits": {"max_cpu_ms": 100, "max_mem_mb": 32, "max_wall_ms": 1000, "max_output_bytes": 4096}
}`

func TestParseManifestAcceptsValidDocument(t *testing.T) {
	m, err := ParseManifest([]byte(validManifestJSON), false)
	require.NoError(t, err)
	require.Equal(t, "file.list", m.Name)
	require.Equal(t, magray.RuntimeBuiltin, m.Runtime)
}

func TestParseManifestRejectsMissingName(t *testing.T) {
	_, err := ParseManifest([]byte(`{"version":"1.0.0","runtime":"builtin","limits":{"max_cpu_ms":1,"max_mem_mb":1,"max_wall_ms":1}}`), false)
	require.Error(t, err)
	require.True(t, magray.KindError(magray.ErrManifestInvalid).Is(err))
}

func TestParseManifestRequiresEntryForNonBuiltin(t *testing.T) {
	_, err := ParseManifest([]byte(`{"name":"x","version":"1.0.0","runtime":"wasm","limits":{"max_cpu_ms":1,"max_mem_mb":1,"max_wall_ms":1}}`), false)
	require.Error(t, err)
}

func TestParseManifestRequiresSignatureWhenDemanded(t *testing.T) {
	_, err := ParseManifest([]byte(validManifestJSON), true)
	require.Error(t, err)
	require.True(t, magray.KindError(magray.ErrSignatureInvalid).Is(err))
}

func TestManifestValidateArgsRejectsMissingRequired(t *testing.T) {
	m, err := ParseManifest([]byte(validManifestJSON), false)
	require.NoError(t, err)

	require.NoError(t, m.ValidateArgs(map[string]any{"path": "/tmp/a"}))
	require.Error(t, m.ValidateArgs(map[string]any{}))
}

func TestManifestToSpecCarriesCapabilities(t *testing.T) {
	m, err := ParseManifest([]byte(validManifestJSON), false)
	require.NoError(t, err)
	spec := m.ToSpec()
	require.True(t, spec.HasCapability(magray.CapFSRead, "/tmp"))
}
