package grpcapi

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/magray/magray/internal/bus"
	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/pkg/magray"
)

// Server implements AgentServer against one Orchestrator/Bus pair,
// grounded on the teacher's example/cmd/assistant transport handlers
// (thin adapter that decodes the wire request, calls into the existing
// service, and re-encodes results) but hand-written since nothing in
// scope generates these adapters from a design file.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *bus.Bus
}

var _ AgentServer = (*Server)(nil)

// Submit subscribes to every bus event before starting the Orchestrator,
// so no transition published between wf.ID's assignment and the
// subscription being live is ever missed. Because Orchestrator.Run
// assigns wf.ID internally, the handler does not know which
// CorrelationID to filter on until the first event arrives; it locks onto
// that event's CorrelationID and discards events carrying any other,
// isolating concurrent Submit calls from each other without requiring any
// Orchestrator change.
func (s *Server) Submit(req *SubmitRequest, stream Agent_SubmitServer) error {
	sub := s.Bus.Subscribe("*")
	defer sub.Close()

	type runOutcome struct {
		wf  *magray.Workflow
		err error
	}
	done := make(chan runOutcome, 1)
	ctx := stream.Context()
	go func() {
		wf, err := s.Orchestrator.Run(ctx, req.toRequest())
		done <- runOutcome{wf: wf, err: err}
	}()

	var correlationID string
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return status.Error(codes.Internal, "event bus closed before workflow completed")
			}
			if correlationID == "" {
				correlationID = evt.CorrelationID
			}
			if evt.CorrelationID != correlationID {
				continue
			}
			msg := newEventMessage(evt)
			if err := stream.Send(&msg); err != nil {
				return err
			}
		case outcome := <-done:
			return s.sendResult(stream, outcome.wf, outcome.err)
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
	}
}

func (s *Server) sendResult(stream Agent_SubmitServer, wf *magray.Workflow, runErr error) error {
	result := &SubmitResult{}
	if wf != nil {
		result.WorkflowID = string(wf.ID)
		result.State = string(wf.State)
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return stream.SendResult(result)
}

// Control dispatches Pause/Resume/Cancel to the Orchestrator's Executor.
// Rollback has no RPC-reachable implementation: Executor.Rollback needs
// the ActionPlan and ExecutionResult a bare ControlRequest does not carry,
// so it is not wired here.
func (s *Server) Control(_ context.Context, req *ControlRequest) (*ControlResponse, error) {
	cmd := req.toCommand()
	if cmd == magray.ControlRollback {
		return nil, status.Error(codes.Unimplemented, "rollback is not reachable over Control; it requires a plan and result the RPC does not carry")
	}
	if s.Orchestrator.Executor == nil {
		return nil, status.Error(codes.FailedPrecondition, "orchestrator has no executor configured")
	}
	if err := s.Orchestrator.Executor.Control(cmd); err != nil {
		return &ControlResponse{Ok: false, Error: err.Error()}, nil
	}
	return &ControlResponse{Ok: true}, nil
}
