package grpc

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps a connection to a running bot's admin service.
type Client struct {
	conn          *grpc.ClientConn
	serverAddress string
	timeout       time.Duration
}

// NewClient creates an admin client for serverAddress.
func NewClient(serverAddress string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(serverAddress, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, serverAddress: serverAddress, timeout: timeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		log.Debug().Err(err).Str("server", c.serverAddress).Str("method", method).Msg("admin call failed")
		return nil, err
	}
	return out, nil
}

// Health reports the serving status of the admin service.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// List returns the repeaters of a guild as the running bot sees them.
func (c *Client) List(ctx context.Context, guildID string) ([]Summary, error) {
	out, err := c.call(ctx, "List", map[string]any{"guild_id": guildID})
	if err != nil {
		return nil, err
	}
	items := out.GetFields()["repeaters"].GetListValue().GetValues()
	reps := make([]Summary, 0, len(items))
	for _, item := range items {
		reps = append(reps, summaryFrom(item.GetStructValue()))
	}
	return reps, nil
}

// Toggle enables or disables a repeater.
func (c *Client) Toggle(ctx context.Context, guildID string, id int64, enabled bool) (Summary, error) {
	out, err := c.call(ctx, "Toggle", map[string]any{"guild_id": guildID, "id": id, "enabled": enabled})
	if err != nil {
		return Summary{}, err
	}
	return summaryFrom(out), nil
}

// Delete removes a repeater.
func (c *Client) Delete(ctx context.Context, guildID string, id int64) error {
	_, err := c.call(ctx, "Delete", map[string]any{"guild_id": guildID, "id": id})
	return err
}
