package grpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/status"
	"go.opentelemetry.io/otel"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

// Client represents a gRPC health client for one status backend.
type Client struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	addr   string
}

// NewClient creates a client for the backend at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create status client for %s: %w", addr, err)
	}

	return &Client{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
		addr:   addr,
	}, nil
}

// MustNewClient creates a client for the backend at addr or panics.
func MustNewClient(addr string) *Client {
	if addr == "" {
		panic("status backend address is not set in config")
	}

	c, err := NewClient(addr)
	if err != nil {
		panic(err)
	}

	slog.Info("gRPC status client created", "address", addr)

	return c
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}

// GetStatus runs a health check for the service named id.
func (c *Client) GetStatus(ctx context.Context, id string) status.Response {
	ctx, span := otel.Tracer("grpc-client").Start(ctx, "Client.GetStatus")
	defer span.End()

	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: id})
	if err != nil {
		return fromError(c.addr, err)
	}

	return status.Succeeded(id, resp.GetStatus().String())
}

// fromError maps a failed call to a response. Unavailable and
// ResourceExhausted errors carrying RetryInfo ask the caller to retry.
func fromError(addr string, err error) status.Response {
	st, ok := grpcstatus.FromError(err)
	if ok && (st.Code() == codes.Unavailable || st.Code() == codes.ResourceExhausted) {
		for _, detail := range st.Details() {
			if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
				return status.RetryLater(info.GetRetryDelay().AsDuration())
			}
		}
	}

	return status.Failed(fmt.Errorf("health check on %s failed: %w", addr, err))
}
