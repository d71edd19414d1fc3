// Package tools hosts the Tool Registry & Sandbox described in spec.md
// §4.3: manifest loading/validation, signature checks, capability-scoped
// execution dispatch, and the WASM/subprocess/MCP runtimes. It is grounded
// on the teacher's runtime/agent/tools (ToolSpec/TypeSpec split) and
// runtime/registry (manager lifecycle), generalized from the teacher's
// design-time-codegen model (ToolSpecs built by `goa gen`) to a
// manifest-file-driven model (tool.json loaded and validated at runtime).
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/magray/magray/pkg/magray"
)

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// Manifest is the decoded shape of a tool.json file (spec.md §6). validate
// requires Name, a semver Version, a known Runtime, Entry (except for
// builtin tools), and positive max_cpu_ms, max_mem_mb and max_wall_ms
// limits. Capabilities, Schema, max_fuel, max_output_bytes, Signature and
// Usage may be omitted; a Schema that is present must parse.
type Manifest struct {
	Name         string                `json:"name"`
	Version      string                `json:"version"`
	Runtime      magray.RuntimeKind    `json:"runtime"`
	Entry        string                `json:"entry"`
	Capabilities []ManifestCapability  `json:"capabilities"`
	Schema       json.RawMessage       `json:"schema"`
	Limits       ManifestLimits        `json:"limits"`
	Signature    *magray.SignatureInfo `json:"signature,omitempty"`
	Usage        string                `json:"usage,omitempty"`
}

// ManifestCapability is one capability entry in a tool.json manifest.
type ManifestCapability struct {
	Kind  magray.CapabilityKind `json:"kind"`
	Scope string                `json:"scope,omitempty"`
}

// ManifestLimits mirrors spec.md §4.3's required resource limit fields.
type ManifestLimits struct {
	MaxCPUMillis   int64 `json:"max_cpu_ms"`
	MaxMemoryMB    int64 `json:"max_mem_mb"`
	MaxWallMillis  int64 `json:"max_wall_ms"`
	MaxFuel        int64 `json:"max_fuel"`
	MaxOutputBytes int64 `json:"max_output_bytes"`
}

// semverPattern is intentionally permissive: the registry only needs to
// reject obviously malformed versions, not enforce full SemVer 2.0 grammar.
const semverPattern = `^\d+\.\d+\.\d+`

// ParseManifest decodes and validates raw tool.json bytes, returning a
// ManifestInvalid error (spec.md §4.3) on any required-field or schema
// violation, and a SignatureInvalid error when requireSignature is true
// and the manifest has none.
func ParseManifest(data []byte, requireSignature bool) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, magray.WrapError(magray.ErrManifestInvalid, err, "decode tool.json")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if requireSignature && m.Signature == nil {
		return nil, magray.NewError(magray.ErrSignatureInvalid, "tool %q manifest has no signature but signing is required", m.Name)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return magray.NewError(magray.ErrManifestInvalid, "manifest missing required field: name")
	}
	if !matchesSemverPrefix(m.Version) {
		return magray.NewError(magray.ErrManifestInvalid, "manifest %q has invalid version %q", m.Name, m.Version)
	}
	switch m.Runtime {
	case magray.RuntimeWasm, magray.RuntimeSubprocess, magray.RuntimeBuiltin:
	default:
		return magray.NewError(magray.ErrManifestInvalid, "manifest %q has unknown runtime %q", m.Name, m.Runtime)
	}
	if m.Runtime != magray.RuntimeBuiltin && m.Entry == "" {
		return magray.NewError(magray.ErrManifestInvalid, "manifest %q missing entry point for runtime %q", m.Name, m.Runtime)
	}
	if len(m.Schema) > 0 {
		if _, err := jsonschema.UnmarshalJSON(bytesReader(m.Schema)); err != nil {
			return magray.WrapError(magray.ErrManifestInvalid, err, "manifest %q has invalid arg schema", m.Name)
		}
	}
	limits := m.Limits
	if limits.MaxCPUMillis <= 0 || limits.MaxWallMillis <= 0 || limits.MaxMemoryMB <= 0 {
		return magray.NewError(magray.ErrManifestInvalid, "manifest %q missing required resource limits", m.Name)
	}
	return nil
}

func matchesSemverPrefix(v string) bool {
	if v == "" {
		return false
	}
	var major, minor, patch int
	_, err := fmt.Sscanf(v, "%d.%d.%d", &major, &minor, &patch)
	return err == nil
}

// ToSpec converts a validated Manifest into the registry's ToolSpec.
func (m *Manifest) ToSpec() magray.ToolSpec {
	caps := make([]magray.Capability, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		caps = append(caps, magray.Capability{Kind: c.Kind, Scope: c.Scope})
	}
	return magray.ToolSpec{
		Name:         magray.ToolName(m.Name),
		Version:      m.Version,
		Capabilities: caps,
		ArgSchema:    m.Schema,
		Runtime:      m.Runtime,
		Entry:        m.Entry,
		Limits: magray.ResourceLimits{
			MaxCPUMillis:   m.Limits.MaxCPUMillis,
			MaxMemoryMB:    m.Limits.MaxMemoryMB,
			MaxWallMillis:  m.Limits.MaxWallMillis,
			MaxFuel:        m.Limits.MaxFuel,
			MaxOutputBytes: m.Limits.MaxOutputBytes,
		},
		Signature:  m.Signature,
		UsageGuide: m.Usage,
	}
}

// ValidateArgs checks args against the manifest's JSON Schema.
func (m *Manifest) ValidateArgs(args map[string]any) error {
	if len(m.Schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(bytesReader(m.Schema))
	if err != nil {
		return magray.WrapError(magray.ErrManifestInvalid, err, "decode schema for %q", m.Name)
	}
	const resourceName = "tool-schema.json"
	if err := compiler.AddResource(resourceName, schemaDoc); err != nil {
		return magray.WrapError(magray.ErrManifestInvalid, err, "register schema for %q", m.Name)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return magray.WrapError(magray.ErrManifestInvalid, err, "compile schema for %q", m.Name)
	}
	if err := schema.Validate(toAnyMap(args)); err != nil {
		return magray.WrapError(magray.ErrValidationError, err, "args for %q failed schema validation", m.Name)
	}
	return nil
}

func toAnyMap(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
