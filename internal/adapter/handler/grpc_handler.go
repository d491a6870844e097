package handler

import (
	"context"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

type GRPCHandler struct {
	server *grpc.Server
	health *health.Server
}

func NewGRPCHandler() *GRPCHandler {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	// only the server as a whole is reported; no catalog services are
	// registered over gRPC
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &GRPCHandler{server: server, health: hs}
}

func (h *GRPCHandler) Serve(lis net.Listener) error {
	return h.server.Serve(lis)
}

// Shutdown reports NOT_SERVING to health checkers, then drains in-flight
// calls.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	started := time.Now()
	resp, err := handler(ctx, req)

	entry := log.WithFields(log.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(started).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("grpc call failed")
	} else {
		entry.Debug("grpc call")
	}
	return resp, err
}
