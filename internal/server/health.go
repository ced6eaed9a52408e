package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "notice.ingest"

// Pinger is anything that can report its own liveness, e.g. *repository.DB.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// HealthServer exposes the standard gRPC health service. When a Pinger is set
// the serving status follows it.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthServer(pinger Pinger, interval time.Duration, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	// Reflection for grpcurl
	reflection.Register(gs)

	s := &HealthServer{grpc: gs, health: hs, pinger: pinger, interval: interval, logger: logger}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *HealthServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("failed to listen on address", "addr", addr, "error", err)
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("gRPC health serving", "addr", lis.Addr().String())

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.pinger != nil {
		go s.watch(watchCtx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		s.logger.Info("gRPC health stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func (s *HealthServer) watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := s.pinger.HealthCheck(ctx, s.interval/2)
		switch {
		case err != nil && healthy:
			s.logger.Warn("health.not_serving", "error", err)
			s.set(healthpb.HealthCheckResponse_NOT_SERVING)
			healthy = false
		case err == nil && !healthy:
			s.logger.Info("health.serving")
			s.set(healthpb.HealthCheckResponse_SERVING)
			healthy = true
		}
	}
}
