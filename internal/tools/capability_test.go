package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/pkg/magray"
)

func TestCheckCapabilitiesAllowsExactScope(t *testing.T) {
	spec := magray.ToolSpec{Capabilities: []magray.Capability{{Kind: magray.CapNetDomain, Scope: "example.com"}}}
	err := CheckCapabilities(spec, []CapabilityGrant{{Kind: magray.CapNetDomain, Scope: "example.com"}})
	require.NoError(t, err)
}

func TestCheckCapabilitiesDeniesMismatchedDomain(t *testing.T) {
	spec := magray.ToolSpec{Capabilities: []magray.Capability{{Kind: magray.CapNetDomain, Scope: "example.com"}}}
	err := CheckCapabilities(spec, []CapabilityGrant{{Kind: magray.CapNetDomain, Scope: "other.com"}})
	require.Error(t, err)
	require.True(t, magray.KindError(magray.ErrCapabilityDenied).Is(err))
}

func TestCheckCapabilitiesFSWritePrefixMatch(t *testing.T) {
	spec := magray.ToolSpec{Capabilities: []magray.Capability{{Kind: magray.CapFSWrite, Scope: "/home/user/project/out.txt"}}}
	err := CheckCapabilities(spec, []CapabilityGrant{{Kind: magray.CapFSWrite, Scope: "/home/user"}})
	require.NoError(t, err)
}

func TestCheckCapabilitiesWildcardGrantCoversAnyScope(t *testing.T) {
	spec := magray.ToolSpec{Capabilities: []magray.Capability{{Kind: magray.CapShellExec, Scope: "rm"}}}
	err := CheckCapabilities(spec, []CapabilityGrant{{Kind: magray.CapShellExec, Scope: "*"}})
	require.NoError(t, err)
}
