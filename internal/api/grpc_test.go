package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/miradorstack/model-graveyard/internal/config"
	"github.com/miradorstack/model-graveyard/internal/models"
)

func TestGRPCHealthReflectsSnapshot(t *testing.T) {
	srv, err := NewGRPCServer(config.ServerConfig{GRPCAddress: "127.0.0.1:0", GracefulTimeout: time.Second})
	require.NoError(t, err)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), srv.GracefulTimeout())
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(srv.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Publish([]models.StatusRecord{
		{ID: "agent:a1", ProbeOutcome: models.ProbeOutcome{Severity: models.SeverityOK}},
		{ID: "agent:a2", ProbeOutcome: models.ProbeOutcome{Severity: models.SeverityCritical}},
	})

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("agent:a1"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("agent:a2"))

	srv.Publish([]models.StatusRecord{
		{ID: "agent:a1", ProbeOutcome: models.ProbeOutcome{Severity: models.SeverityWarn}},
	})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("agent:a1"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, check("agent:a2"))
}
