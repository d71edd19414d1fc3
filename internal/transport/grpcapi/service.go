package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// AgentServer is the RPC surface cmd/magrayd exposes: Submit drives one
// Request through the Orchestrator and streams its workflow-transition
// events back; Control dispatches a pause/resume/cancel to the running
// Executor.
type AgentServer interface {
	Submit(req *SubmitRequest, stream Agent_SubmitServer) error
	Control(ctx context.Context, req *ControlRequest) (*ControlResponse, error)
}

// Agent_SubmitServer is the server-streaming handle Submit writes
// EventMessage/SubmitResult frames to, mirroring the shape
// protoc-gen-go-grpc generates for a server-streaming RPC.
type Agent_SubmitServer interface {
	Send(*EventMessage) error
	SendResult(*SubmitResult) error
	grpc.ServerStream
}

type agentSubmitServer struct {
	grpc.ServerStream
}

func (s *agentSubmitServer) Send(m *EventMessage) error {
	return s.ServerStream.SendMsg(m)
}

func (s *agentSubmitServer) SendResult(m *SubmitResult) error {
	return s.ServerStream.SendMsg(m)
}

func _Agent_Submit_Handler(srv any, stream grpc.ServerStream) error {
	m := new(SubmitRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(AgentServer).Submit(m, &agentSubmitServer{ServerStream: stream})
}

func _Agent_Control_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ControlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Control(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/magray.Agent/Control"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServer).Control(ctx, req.(*ControlRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the Agent service exactly as protoc-gen-go-grpc
// would generate it from a .proto definition, hand-authored here so the
// message types can be plain structs decoded by Codec instead of requiring
// generated proto.Message implementations.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "magray.Agent",
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Control",
			Handler:    _Agent_Control_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Submit",
			Handler:       _Agent_Submit_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "magray/agent.proto",
}

// RegisterAgentServer registers srv with s using ServiceDesc, the
// hand-written equivalent of the generated RegisterAgentServer function.
func RegisterAgentServer(s grpc.ServiceRegistrar, srv AgentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ClientDialHint documents the dial option a client must set to talk to a
// jsonCodec-served Agent: grpc.ForceCodec pins the client to the same
// codec the server was built with via grpc.ForceServerCodec, so neither
// side needs content-subtype negotiation.
func ClientDialHint() string {
	return fmt.Sprintf("dial with grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec)) to match the server's grpc.ForceServerCodec(%s{})", Codec.Name())
}
