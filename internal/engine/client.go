// Package engine is the gRPC client for the external Bayesian-network
// inference service.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/cropnet/internal/inference"
)

// #region client-struct
// Client wraps the gRPC connection to the Python inference service and
// satisfies inference.Engine.
type Client struct {
	conn    *grpc.ClientConn
	client  InferenceServiceClient
	workers int
	logger  *zap.Logger
}

var _ inference.Engine = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithWorkers sets the parallelism hint sent with every query.
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server.
func NewClient(addr string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := newClient(NewInferenceServiceClient(conn), opts)
	c.conn = conn
	return c, nil
}

// NewClientWithService creates a Client with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewClientWithService(svc InferenceServiceClient, opts ...Option) *Client {
	return newClient(svc, opts)
}

func newClient(svc InferenceServiceClient, opts []Option) *Client {
	c := &Client{client: svc, workers: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region query
// Query asks the engine for node marginals under each observation set.
func (c *Client) Query(ctx context.Context, observations []inference.Evidence) ([]map[string]inference.Marginals, error) {
	req, err := encodeQuery(observations, c.workers)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	resp, err := c.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query rpc: %w", err)
	}

	results, err := decodeResults(resp)
	if err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	c.logger.Debug("query answered",
		zap.Int("observations", len(observations)),
		zap.Int("workers", c.workers))
	return results, nil
}

// #endregion query

// #region interventions
// DoIntervention fixes variable to bucket for subsequent queries.
func (c *Client) DoIntervention(ctx context.Context, variable string, bucket int) error {
	req, err := structpb.NewStruct(map[string]any{"variable": variable, "bucket": bucket})
	if err != nil {
		return fmt.Errorf("encode intervention: %w", err)
	}
	if _, err := c.client.DoIntervention(ctx, req); err != nil {
		return fmt.Errorf("do intervention rpc: %w", err)
	}
	c.logger.Debug("intervention applied", zap.String("variable", variable), zap.Int("bucket", bucket))
	return nil
}

// ResetDo removes any intervention on variable.
func (c *Client) ResetDo(ctx context.Context, variable string) error {
	req, err := structpb.NewStruct(map[string]any{"variable": variable})
	if err != nil {
		return fmt.Errorf("encode reset: %w", err)
	}
	if _, err := c.client.ResetDo(ctx, req); err != nil {
		return fmt.Errorf("reset do rpc: %w", err)
	}
	return nil
}

// #endregion interventions
