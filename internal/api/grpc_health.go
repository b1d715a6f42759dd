package api

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

// HealthReporter mirrors worker liveness into the standard gRPC health service,
// both for the named service and the server as a whole.
type HealthReporter struct {
	server   *health.Server
	worker   Liveness
	interval time.Duration
	last     healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(worker Liveness, interval time.Duration) *HealthReporter {
	return &HealthReporter{
		server:   health.NewServer(),
		worker:   worker,
		interval: interval,
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
}

// NewGRPCServer returns a server exposing grpc.health.v1.Health backed by r.
func NewGRPCServer(r *HealthReporter) *grpc.Server {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, r.server)
	return s
}

func (r *HealthReporter) Health() healthpb.HealthServer {
	return r.server
}

// Sync publishes the current worker state.
func (r *HealthReporter) Sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if r.worker.Running() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if status == r.last {
		return
	}
	r.last = status
	r.server.SetServingStatus(ServiceName, status)
	r.server.SetServingStatus("", status)
	telemetry.Logger.Info("gRPC health status changed", zap.String("status", status.String()))
}

// Run syncs on every interval until ctx is done, then reports NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sync()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Sync()
		}
	}
}
