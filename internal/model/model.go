// Package model defines the provider-agnostic LLM client seam used by the
// IntentAnalyzer's confidence fallback and the Planner's tool-resolution
// assistance (spec.md §4.1/§4.2). Narrowed from the teacher's
// runtime/agent/model package, which supports multimodal parts, streaming,
// and prompt caching for full conversational agents; MAGRAY's agents only
// ever need a single non-streaming completion call, so Client exposes just
// Complete, and provider adapters (internal/model/anthropic,
// internal/model/openai, internal/model/bedrock) implement it directly
// against their SDKs rather than through the teacher's richer Request
// type.
package model

import "context"

// Message is one turn in a conversation passed to Complete.
type Message struct {
	Role    Role
	Content string
}

// Role identifies the speaker of a Message.
type Role string

// Role variants.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Request is a single non-streaming completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is a completion result.
type Response struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage reports token consumption for telemetry.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Client is the provider-agnostic model client every adapter implements.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
