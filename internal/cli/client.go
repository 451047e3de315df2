package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkggrpc "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
)

// SearchClient is what the commands need from the search process.
type SearchClient interface {
	Index(ctx context.Context, docs []proto.Document) (proto.IndexResponse, error)
	Search(ctx context.Context, query string, limit int) (proto.SearchResponse, error)
	Generation(ctx context.Context) (proto.GenerationResponse, error)
}

// RPCClient calls the search process over pkg/grpc. Transport failures
// are retried on a fresh connection and counted by a circuit breaker;
// errors returned by the service itself are neither. Index is only
// retried when the request never left the client, since a timed-out
// Index may still complete and a resend would build another generation.
type RPCClient struct {
	addr    string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	mu   sync.Mutex
	conn *pkggrpc.Client
}

func NewRPCClient(addr string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		addr:    addr,
		timeout: timeout,
		breaker: resilience.NewCircuitBreaker("search-rpc", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
			IsFailure:        isTransportError,
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return isTransportError(err) && !errors.Is(err, resilience.ErrCircuitOpen)
			},
		},
	}
}

// errNotSent marks failures that happened before the request was written.
var errNotSent = errors.New("request not sent")

func isTransportError(err error) bool {
	var remote *pkggrpc.RemoteError
	return err != nil && !errors.As(err, &remote) &&
		!errors.Is(err, context.Canceled)
}

func (c *RPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *RPCClient) connection() (*pkggrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := pkggrpc.Dial(c.addr)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *RPCClient) discard(conn *pkggrpc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params, result any) error {
	cfg := c.retry
	if method == proto.MethodIndex {
		retryable := cfg.Retryable
		cfg.Retryable = func(err error) bool {
			return errors.Is(err, errNotSent) && (retryable == nil || retryable(err))
		}
	}
	return resilience.Retry(ctx, method, cfg, func() error {
		return c.breaker.Execute(func() error {
			conn, err := c.connection()
			if err != nil {
				return fmt.Errorf("%w: %w", errNotSent, err)
			}
			err = resilience.WithTimeout(ctx, c.timeout, method, func(ctx context.Context) error {
				return conn.Call(ctx, method, params, result)
			})
			// A timed-out call may still be reading; closing the
			// connection keeps the next attempt off it.
			if isTransportError(err) {
				c.discard(conn)
			}
			return err
		})
	})
}

func (c *RPCClient) Index(ctx context.Context, docs []proto.Document) (proto.IndexResponse, error) {
	var resp proto.IndexResponse
	err := c.call(ctx, proto.MethodIndex, proto.IndexRequest{Documents: docs}, &resp)
	return resp, err
}

func (c *RPCClient) Search(ctx context.Context, query string, limit int) (proto.SearchResponse, error) {
	var resp proto.SearchResponse
	err := c.call(ctx, proto.MethodSearch, proto.SearchRequest{Query: query, Limit: int32(limit)}, &resp)
	return resp, err
}

func (c *RPCClient) Generation(ctx context.Context) (proto.GenerationResponse, error) {
	var resp proto.GenerationResponse
	err := c.call(ctx, proto.MethodGeneration, struct{}{}, &resp)
	return resp, err
}
