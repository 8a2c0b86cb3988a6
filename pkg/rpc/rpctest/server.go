// Package rpctest provides an in-process sidecar speaking the rpc wire
// protocol, for tests of rpc clients.
//
//	srv := rpctest.NewServer(map[string]rpctest.HandlerFunc{
//	    "Inference.Embed": func(ctx context.Context, params json.RawMessage) (any, error) { ... },
//	})
//	defer srv.Close()
//	c := rpc.NewClient(srv.Addr, time.Second)
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/rpc"
)

// HandlerFunc answers one request. A returned error is sent back as the
// response's error text.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server is a sidecar listening on a loopback port.
type Server struct {
	// Addr is host:port of the listener.
	Addr string

	handlers map[string]HandlerFunc
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer starts a Server answering the given methods. The caller must
// Close it.
func NewServer(handlers map[string]HandlerFunc) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("rpctest: failed to listen on a port: %v", err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Addr:     ln.Addr().String(),
		handlers: handlers,
		listener: ln,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
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

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req rpc.Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(s.dispatch(req)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req rpc.Request) rpc.Response {
	resp := rpc.Response{ID: req.ID}
	handler, ok := s.handlers[req.Method]
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}
	data, err := handler(s.ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("encoding result: %v", err)
		return resp
	}
	resp.Data = raw
	return resp
}

// Close stops accepting, drops open connections, cancels running handlers
// and waits for them to return.
func (s *Server) Close() {
	s.cancel()
	s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
