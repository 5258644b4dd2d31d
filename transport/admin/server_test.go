package admin

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()
	listener := bufconn.Listen(1024 * 1024)
	server := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return server, healthpb.NewHealthClient(conn)
}

func TestServer_Health(t *testing.T) {
	req := require.New(t)
	server, client := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Given a server that didn't finish starting
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	// When the chat is ready
	server.SetServing(true)

	// Then both entries report it
	for _, service := range []string{"", ServiceName} {
		resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		req.NoError(err)
		req.Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
	}

	server.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestServer_Unknown_Service(t *testing.T) {
	_, client := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})

	require.Error(t, err)
}
