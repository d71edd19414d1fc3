package tools

import (
	"strings"

	"github.com/magray/magray/pkg/magray"
)

// CapabilityGrant is a capability a caller holds, possibly elevated beyond
// what a ToolSpec originally declared (spec.md §4.3: planner may request
// elevation via a UserPrompt step, captured here as an extra grant).
type CapabilityGrant struct {
	Kind  magray.CapabilityKind
	Scope string
}

// CheckCapabilities verifies that every capability a ToolSpec declares is
// covered by the provided grants, returning a CapabilityDenied error naming
// the first uncovered capability. Scope matching is prefix-based for
// CapFSRead/CapFSWrite (so a grant for "/home/user" covers
// "/home/user/project") and exact for CapNetDomain/CapShellExec/CapUIPrompt.
func CheckCapabilities(spec magray.ToolSpec, grants []CapabilityGrant) error {
	for _, want := range spec.Capabilities {
		if !coveredBy(want, grants) {
			return magray.NewError(magray.ErrCapabilityDenied, "tool %q requires capability %s:%s, not granted", spec.Name, want.Kind, want.Scope)
		}
	}
	return nil
}

func coveredBy(want magray.Capability, grants []CapabilityGrant) bool {
	for _, g := range grants {
		if g.Kind != want.Kind {
			continue
		}
		if scopeCovers(want.Kind, g.Scope, want.Scope) {
			return true
		}
	}
	return false
}

func scopeCovers(kind magray.CapabilityKind, granted, requested string) bool {
	if granted == "" || granted == "*" {
		return true
	}
	switch kind {
	case magray.CapFSRead, magray.CapFSWrite:
		return requested == granted || strings.HasPrefix(requested, strings.TrimSuffix(granted, "/")+"/")
	default:
		return granted == requested
	}
}
