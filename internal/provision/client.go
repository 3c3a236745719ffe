package provision

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client calls a remote Provisioner.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the provisioning server at addr. The connection is
// established lazily on the first call.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Provision(ctx context.Context, req Request) (Response, error) {
	var resp Response
	if err := c.conn.Invoke(ctx, provisionMethod, &req, &resp); err != nil {
		return Response{}, fmt.Errorf("provision: %s", status.Convert(err).Message())
	}
	return resp, nil
}

func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var resp StatsResponse
	if err := c.conn.Invoke(ctx, statsMethod, &StatsRequest{}, &resp); err != nil {
		return StatsResponse{}, fmt.Errorf("stats: %s", status.Convert(err).Message())
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
