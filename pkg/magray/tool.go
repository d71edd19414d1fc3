package magray

type (
	// RuntimeKind selects the execution substrate a ToolSpec uses.
	RuntimeKind string

	// CapabilityKind discriminates the typed, scoped permission variants a
	// tool can request. Scope carries the variant payload: a filesystem
	// root, an allowed domain, or an allowed command prefix.
	CapabilityKind string

	// Capability is an additive, scope-checked permission grant. Tools
	// declare the capabilities they need in their manifest; the Policy
	// Engine and sandbox boundary both check the grant set before and
	// during execution respectively.
	Capability struct {
		Kind  CapabilityKind
		Scope string
	}

	// ResourceLimits bounds a single tool invocation. Every field maps
	// directly to a tool.json `limits` field (spec.md §4.3/§6).
	ResourceLimits struct {
		MaxCPUMillis    int64
		MaxMemoryMB     int64
		MaxWallMillis   int64
		MaxFuel         int64
		MaxOutputBytes  int64
	}

	// SignatureInfo records the manifest's optional signing metadata.
	SignatureInfo struct {
		Algo      string
		Digest    string
		Signer    string
		Timestamp string
	}

	// ToolSpec is the Tool Registry's resolved view of a tool.json
	// manifest: metadata, capability set, argument schema, runtime kind,
	// limits, and optional signature/usage guide.
	ToolSpec struct {
		Name         ToolName
		Version      string
		Description  string
		Capabilities []Capability
		// ArgSchema is the raw JSON Schema document validating invocation
		// arguments.
		ArgSchema []byte
		Runtime   RuntimeKind
		// Entry is the runtime-specific entry point: a WASM module path,
		// a subprocess command, or an MCP server URL.
		Entry     string
		Limits    ResourceLimits
		Signature *SignatureInfo
		UsageGuide string
	}
)

// CapabilityKind variants named in spec.md §3.
const (
	CapFSRead    CapabilityKind = "fs.read"
	CapFSWrite   CapabilityKind = "fs.write"
	CapNetDomain CapabilityKind = "net.domain"
	CapShellExec CapabilityKind = "shell.exec"
	CapUIPrompt  CapabilityKind = "ui.prompt"
)

// RuntimeKind variants.
const (
	RuntimeWasm       RuntimeKind = "wasm"
	RuntimeSubprocess RuntimeKind = "subprocess"
	RuntimeBuiltin    RuntimeKind = "builtin"
)

// HasCapability reports whether the spec declares a capability of the
// given kind whose scope equals scope, or whose declared scope is empty
// (unscoped). Prefixes of a path or domain do not match.
func (t ToolSpec) HasCapability(kind CapabilityKind, scope string) bool {
	for _, c := range t.Capabilities {
		if c.Kind != kind {
			continue
		}
		if c.Scope == scope || c.Scope == "" {
			return true
		}
	}
	return false
}

// Subject identifies what a PolicyRule or PolicyDecision governs: a
// registered tool or a raw shell command prefix.
type Subject string

// Subject variants.
const (
	SubjectTool    Subject = "tool"
	SubjectCommand Subject = "command"
)

// PolicyAction is the Policy Engine's verdict for a (subject, action, args)
// evaluation.
type PolicyAction string

// PolicyAction variants.
const (
	PolicyAllow PolicyAction = "allow"
	PolicyDeny  PolicyAction = "deny"
	PolicyAsk   PolicyAction = "ask"
)

// PolicyRule is one entry of a merged policy rule set. Name "*" matches
// any subject name of the given Kind. WhenContainsArgs, when non-empty,
// must be fully satisfied (every key present and string-equal) for the
// rule to match.
type PolicyRule struct {
	SubjectKind      Subject
	Name             string
	WhenContainsArgs map[string]string
	Action           PolicyAction
	Reason           string
}
