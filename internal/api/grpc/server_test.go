package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/config"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	log := logger.NewNop()
	lis := bufconn.Listen(1024 * 1024)

	srv := NewServer(config.GRPCConfig{Port: "0", Enabled: true}, log)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts := DefaultClientOptions()
	opts.Address = "passthrough:///bufnet"
	opts.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
	client, err := NewClient(opts, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return srv, client
}

func TestServer_HealthCheck(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		status, err := client.Check(ctx, ServiceName)
		return err == nil && status == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	status, err := client.Check(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	srv.SetServing(false)
	status, err = client.Check(ctx, ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}

func TestServer_UnknownServiceIsAnError(t *testing.T) {
	_, client := startServer(t)

	_, err := client.Check(context.Background(), "unknown.Service")
	assert.Error(t, err)
}
