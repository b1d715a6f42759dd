package api

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type flagWorker struct{ running atomic.Bool }

func (w *flagWorker) Running() bool { return w.running.Load() }

func check(t *testing.T, r *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthReporter_FollowsWorker(t *testing.T) {
	w := &flagWorker{}
	r := NewHealthReporter(w, 0)

	r.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, ServiceName))

	w.running.Store(true)
	r.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r, ""))

	w.running.Store(false)
	r.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, ServiceName))
}

func TestHealthReporter_RunShutsDown(t *testing.T) {
	w := &flagWorker{}
	w.running.Store(true)
	r := NewHealthReporter(w, 1<<30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r, ServiceName))
}
