// Package admin serves the operator side of the chat over gRPC: health checks and reflection.
package admin

import (
	"log/slog"
	"net"
	"quorum/errors"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health entry of the chat itself, "" covers the whole server.
const ServiceName = "quorum.Chat"

type Server struct {
	log    *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(log *slog.Logger) *Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{log: log, grpc: s, health: h}
}

// Serve blocks until Stop.
func (s *Server) Serve(listener net.Listener) error {
	s.log.Info("Starting admin gRPC server", "address", listener.Addr().String())
	for serviceName := range s.grpc.GetServiceInfo() {
		s.log.Debug("gRPC exposed services", "name", serviceName)
	}
	if err := s.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// SetServing flips the health of the whole server and of the chat.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop reports NOT_SERVING to watchers, then lets in-flight calls finish.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
