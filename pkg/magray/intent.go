package magray

import "time"

type (
	// Request is the opaque unit of work submitted by a front-end. The
	// Orchestrator owns the Request for the lifetime of the Workflow it
	// starts; agents only ever see it by RequestID lookup.
	Request struct {
		ID        RequestID
		SessionID SessionID
		Utterance string
		CreatedAt time.Time
		// Context carries optional front-end-supplied key/value hints
		// (working directory, active file, shell, etc.). Values are
		// JSON-like: string, number, bool, nil, []any, map[string]any.
		Context map[string]any
	}

	// IntentKind discriminates the tagged variants an utterance can resolve
	// to. The zero value IntentUnknown forces callers to handle the
	// fallback case explicitly.
	IntentKind string

	// Intent is the structured interpretation of a Request produced by the
	// IntentAnalyzer. Parameters hold variant-specific data named by the
	// Kind; Planner reads Parameters by convention key, not by reflecting
	// on Go struct fields, so the wire shape stays stable across kinds.
	Intent struct {
		ID         IntentID
		Kind       IntentKind
		Parameters map[string]any
		// Confidence is the analyzer's self-reported certainty in [0,1].
		// Below the IntentAnalyzer's Threshold (default 0.8) the analyzer
		// falls back to an LLM pass before settling Kind.
		Confidence float64
		Context    IntentContext
	}

	// IntentContext carries the ambient information the analyzer and any
	// LLM fallback need to disambiguate an utterance.
	IntentContext struct {
		SessionID SessionID
		// Env mirrors relevant process/environment knobs visible to the
		// front-end (cwd, shell, platform). Never contains secrets.
		Env map[string]string
		// History is the recent conversation turns, oldest first, bounded
		// by the caller; the analyzer does not independently truncate it.
		History   []ConversationTurn
		Timestamp time.Time
	}

	// ConversationTurn is one prior utterance/response pair used as
	// disambiguation context.
	ConversationTurn struct {
		Utterance string
		Response  string
		At        time.Time
	}
)

// Recognized IntentKind variants. FileOperation, MemoryOperation,
// WorkflowExecution, SystemCommand, and ExecuteTool carry their variant
// payload under the matching Parameters key documented alongside each
// constant; Unknown carries the raw utterance under "raw".
const (
	IntentExecuteTool       IntentKind = "execute_tool"       // Parameters["name"] string
	IntentAskQuestion       IntentKind = "ask_question"        // no required parameters
	IntentFileOperation     IntentKind = "file_operation"      // Parameters["op"], Parameters["path"]
	IntentMemoryOperation   IntentKind = "memory_operation"     // Parameters["op"]
	IntentWorkflowExecution IntentKind = "workflow_execution"   // Parameters["name"]
	IntentSystemCommand     IntentKind = "system_command"       // Parameters["cmd"]
	IntentUnknown           IntentKind = "unknown"              // Parameters["raw"]
)
