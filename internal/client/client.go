package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/raptchat/rapt/internal/api"
)

// Client wraps the gRPC connection to a session daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes a unary control method with args and returns the response
// fields.
func (c *Client) Call(ctx context.Context, method string, args map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Watch streams daemon events whose kind starts with prefix to fn until
// ctx is done, the daemon goes away or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(map[string]any) error) error {
	desc := &api.ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, api.FullMethod(api.MethodWatchEvents))
	if err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}
	in, err := structpb.NewStruct(map[string]any{"prefix": prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close watch request: %w", err)
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(out.AsMap()); err != nil {
			return err
		}
	}
}
