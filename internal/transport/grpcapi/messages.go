package grpcapi

import "github.com/magray/magray/pkg/magray"

// SubmitRequest carries one magray.Request over the wire. It is kept
// distinct from magray.Request itself (rather than reusing it directly)
// because CreatedAt/ID are server-assigned, not caller-supplied.
type SubmitRequest struct {
	SessionID string         `json:"session_id"`
	Utterance string         `json:"utterance"`
	Context   map[string]any `json:"context,omitempty"`
}

// toRequest builds the magray.Request the Orchestrator consumes, assigning
// a fresh RequestID since SubmitRequest never carries one.
func (r *SubmitRequest) toRequest() magray.Request {
	return magray.Request{
		ID:        magray.RequestID(magray.NewID()),
		SessionID: magray.SessionID(r.SessionID),
		Utterance: r.Utterance,
		Context:   r.Context,
	}
}

// EventMessage is the wire form of one magray.Event delivered while a
// Submit call's workflow runs.
type EventMessage struct {
	Topic         string            `json:"topic"`
	CorrelationID string            `json:"correlation_id"`
	TimestampUnix int64             `json:"timestamp_unix"`
	Payload       any               `json:"payload,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

func newEventMessage(evt magray.Event) EventMessage {
	return EventMessage{
		Topic:         string(evt.Topic),
		CorrelationID: evt.CorrelationID,
		TimestampUnix: evt.Timestamp.Unix(),
		Payload:       evt.Payload,
		Labels:        evt.Labels,
	}
}

// SubmitResult is the final message a Submit stream sends before closing,
// carrying the terminal Workflow state and, if the Orchestrator returned
// one, an error string.
type SubmitResult struct {
	WorkflowID string `json:"workflow_id"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
}

// ControlRequest asks the running Executor to Pause, Resume, or Cancel.
// WorkflowID is accepted for forward compatibility with a per-workflow
// Executor but is currently informational only: Executor.Control operates
// on the single Executor instance the Orchestrator was built with, per
// spec.md §4.6's one-workflow-at-a-time execution model.
type ControlRequest struct {
	WorkflowID string `json:"workflow_id,omitempty"`
	Command    int32  `json:"command"`
}

func (r *ControlRequest) toCommand() magray.ControlCommand {
	return magray.ControlCommand(r.Command)
}

// ControlResponse reports whether a ControlRequest succeeded.
type ControlResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
