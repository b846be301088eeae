package daemon

import (
	"context"
	"fmt"
	"net"

	"github.com/matheus3301/inbox/internal/api"
	"go.uber.org/zap"
)

// Server owns the TCP listener the HTTP and WebSocket API is served on.
type Server struct {
	http     *api.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewServer binds the configured listen address. Binding happens at construction so a
// busy port fails the fx graph before any lifecycle hook runs.
func NewServer(p Params, srv *api.Server, logger *zap.Logger) (*Server, error) {
	addr := p.listenAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		http:     srv,
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address, which differs from the configured one for port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	return s.http.Serve(s.listener)
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
