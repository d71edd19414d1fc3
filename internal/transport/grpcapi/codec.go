// Package grpcapi exposes the Orchestrator's Submit/Control operations over
// gRPC without depending on the protoc/Goa-DSL codegen toolchain: messages
// are plain Go structs (wrapping pkg/magray.Request/Event/ControlCommand),
// marshaled with a JSON codec instead of generated protobuf bindings, and
// routed through a hand-written grpc.ServiceDesc of the same shape
// protoc-gen-go-grpc would otherwise generate. Grounded on the teacher's
// example/cmd/assistant/grpc.go for the server-construction/interceptor/
// reflection/graceful-shutdown pattern; the codec and ServiceDesc
// themselves have no teacher analogue since the teacher always compiles its
// transport from a Goa design file.
package grpcapi

import (
	"encoding/json"
	"fmt"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json, so the hand-written ServiceDesc below can carry plain Go
// structs as wire messages instead of generated proto.Message types.
type jsonCodec struct{}

// Name identifies the codec on the wire via the "grpc-encoding" metadata
// the client and server must agree on.
func (jsonCodec) Name() string { return "json" }

// Marshal encodes v via encoding/json.
func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes data into v via encoding/json.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcapi: unmarshal: %w", err)
	}
	return nil
}

// Codec is the shared jsonCodec instance; install it on the server with
// grpc.ForceServerCodec(Codec) and on clients with grpc.CallContentSubtype
// ("json") paired with a matching client-side encoding.RegisterCodec call.
var Codec = jsonCodec{}
