package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// Client calls a remote PlanningService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a plaintext connection to addr.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return conn, nil
}

// Solve runs a remote solve.
func (c *Client) Solve(ctx context.Context, req types.Request, opts ...grpc.CallOption) (types.SolveResult, error) {
	var res types.SolveResult
	err := c.invoke(ctx, solveMethod, req, &res, opts...)
	return res, err
}

// Simulate runs a remote what-if simulation.
func (c *Client) Simulate(ctx context.Context, req types.SimulateRequest, opts ...grpc.CallOption) (types.SimulateResult, error) {
	var res types.SimulateResult
	err := c.invoke(ctx, simulateMethod, req, &res, opts...)
	return res, err
}

func (c *Client) invoke(ctx context.Context, method string, req, res any, opts ...grpc.CallOption) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return FromStruct(out, res)
}
