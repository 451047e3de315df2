package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// RemoteError is an error returned by the server's handler.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("rpc error: %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("rpc error: %s [%s]: %s", e.Method, e.Code, e.Message)
}

// Client is a lightweight JSON-over-TCP RPC client.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes the named RPC method with params and decodes the response
// into result. The context deadline, if any, bounds the whole round trip.
// Call is safe for concurrent use.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	id := c.nextID.Add(1)

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	req := Request{
		Method: method,
		ID:     fmt.Sprintf("%d", id),
		Params: raw,
	}

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.Error != "" {
		return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
	}

	if result != nil {
		data, err := json.Marshal(resp.Data)
		if err != nil {
			return fmt.Errorf("marshaling response data: %w", err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}

	return nil
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
