package magray

import "time"

// Topic names the minimum topic set from spec.md §4.1. Subscribers may use
// "*" suffix patterns (e.g. "intent.*") when subscribing; publishers always
// publish to a fully qualified topic.
type Topic string

// Topic constants. Suffixes after the dot are free-form and chosen by the
// publisher (e.g. "step.started", "step.completed").
const (
	TopicIntent       Topic = "intent"
	TopicPlan         Topic = "plan"
	TopicStep         Topic = "step"
	TopicToolInvoked  Topic = "tool.invoked"
	TopicToolResult   Topic = "tool.result"
	TopicFSDiff       Topic = "fs.diff"
	TopicMemoryUpsert Topic = "memory.upsert"
	TopicPolicyBlock  Topic = "policy.block"
	TopicJobProgress  Topic = "job.progress"
	TopicLLMTokens    Topic = "llm.tokens"
	TopicError        Topic = "error"
	TopicHealth       Topic = "health"
	TopicLag          Topic = "lag"
)

// Event is one item published on the bus. Payload is a JSON-serializable
// value whose shape is determined by Topic; subscribers type-assert after
// inspecting Topic, matching the teacher's stream.Event convention of a
// generic envelope plus typed payloads.
type Event struct {
	Topic         Topic
	CorrelationID string
	Timestamp     time.Time
	Payload       any
	// Labels carries free-form routing metadata (rule id, reason, engine
	// name) attached by the component that published the event.
	Labels map[string]string
}
