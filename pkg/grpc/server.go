// Package grpc provides a lightweight JSON-over-TCP RPC framework used
// between the search service and the processes that feed and query it.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// request carries a method name in "Service.Method" form; each response
// carries either data or an error message plus a short error code the
// caller can branch on without parsing text.
//
// Example server:
//
//	s := grpc.NewServer()
//	s.Register("SearchService.Search", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var searchReq proto.SearchRequest
//	    if err := json.Unmarshal(req, &searchReq); err != nil {
//	        return nil, err
//	    }
//	    return svc.Search(ctx, searchReq.Query, int(searchReq.Limit))
//	})
//	go s.Serve(":9000")
//
// Example client:
//
//	c, _ := grpc.Dial("localhost:9000")
//	var resp proto.SearchResponse
//	err := c.Call(ctx, "SearchService.Search", &proto.SearchRequest{Query: "hello"}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// ErrorCoder maps a handler error to the code sent on the wire.
type ErrorCoder func(err error) string

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// CodeUnknownMethod is sent when no handler is registered for a method.
const CodeUnknownMethod = "unknown_method"

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	coder    ErrorCoder
	listener net.Listener
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	conns    map[net.Conn]struct{}
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		coder:    func(error) string { return "" },
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// SetErrorCoder installs the function used to tag handler errors.
func (s *Server) SetErrorCoder(coder ErrorCoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coder = coder
}

// Register adds a handler for the given RPC method name.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve starts accepting TCP connections on the given address.
// It blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections on an existing listener.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}

		s.mu.RLock()
		handler, exists := s.handlers[req.Method]
		coder := s.coder
		s.mu.RUnlock()

		resp := Response{ID: req.ID}

		if !exists {
			resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
			resp.Code = CodeUnknownMethod
		} else {
			data, err := handler(s.ctx, req.Params)
			if err != nil {
				resp.Error = err.Error()
				resp.Code = coder(err)
			} else {
				resp.Data = data
			}
		}

		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener, cancels in-flight handlers, and waits for open
// connections to finish.
func (s *Server) Stop() {
	close(s.done)
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
