package main

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/magray/magray/internal/bus"
	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/internal/telemetry"
	"github.com/magray/magray/internal/transport/grpcapi"
)

// handleGRPCServer starts and configures the Agent gRPC server, grounded on
// the teacher's example/cmd/assistant/grpc.go (ChainUnaryInterceptor setup,
// server-info logging loop, reflection registration, ctx.Done-driven
// graceful shutdown). Unlike the teacher, which registers a generated
// *pb.Server built from Goa-compiled bindings, this registers grpcapi.Server
// directly via the hand-written grpcapi.ServiceDesc and forces the JSON
// codec in place of protobuf.
func handleGRPCServer(ctx context.Context, addr string, orch *orchestrator.Orchestrator, evtBus *bus.Bus, logger telemetry.Logger, wg *sync.WaitGroup, errc chan error) {
	srv := grpc.NewServer(grpc.ForceServerCodec(grpcapi.Codec))
	grpcapi.RegisterAgentServer(srv, &grpcapi.Server{Orchestrator: orch, Bus: evtBus})

	for svc, info := range srv.GetServiceInfo() {
		for _, m := range info.Methods {
			logger.Info(ctx, "serving gRPC method", "service", svc, "method", m.Name)
		}
		for _, s := range info.Streams {
			logger.Info(ctx, "serving gRPC stream", "service", svc, "method", s.StreamName)
		}
	}

	reflection.Register(srv)

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				errc <- fmt.Errorf("listen on %q: %w", addr, err)
				return
			}
			logger.Info(ctx, "gRPC server listening", "addr", addr)
			errc <- srv.Serve(lis)
		}()

		<-ctx.Done()
		logger.Info(ctx, "shutting down gRPC server", "addr", addr)
		srv.GracefulStop()
	}()
}
