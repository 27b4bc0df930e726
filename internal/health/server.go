// Package health exposes the standard gRPC health service.
package health

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the orchestrator.
const ServiceName = "agent-orchestrator"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    logrus.FieldLogger
}

func NewServer(log logrus.FieldLogger) *Server {
	s := &Server{grpc: grpc.NewServer(), health: health.NewServer(), log: log}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing flips both the named and the overall status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.WithField("addr", lis.Addr().String()).Info("grpc health server listening")
	return s.grpc.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
