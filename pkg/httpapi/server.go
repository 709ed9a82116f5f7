// Package httpapi serves the relay's HTTP surface: a JSON status API and a
// WebSocket endpoint that joins browser or script clients to the relay.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	relaygrpc "github.com/sharisseji/Waterloop-Host-Application/pkg/grpc"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

const (
	defaultBufferSize   = 1024
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
)

// Server is the HTTP listener for the status API and WebSocket endpoint
type Server struct {
	cfg    config.HTTPConfig
	relay  *relay.Server
	grpc   *relaygrpc.Server
	log    *logger.Logger
	engine *gin.Engine

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	serveErr chan error
}

// Options wires the HTTP server to the rest of the process
type Options struct {
	Relay *relay.Server
	// GRPC, if set, adds the gRPC listener stats to /api/v1/stats
	GRPC   *relaygrpc.Server
	Logger *logger.Logger
}

// NewServer builds the gin engine and routes. Nothing listens until Start.
func NewServer(cfg config.HTTPConfig, opts Options) (*Server, error) {
	if opts.Relay == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "relay server is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = defaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}

	s := &Server{
		cfg:   cfg,
		relay: opts.Relay,
		grpc:  opts.GRPC,
		log:   log.With("component", "http_api"),
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler, for mounting or httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return types.NewError(types.ErrCodeInvalid, "http server already started")
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return types.WrapError(types.ErrCodeUnavailable, "failed to listen on "+s.cfg.Address, err)
	}

	s.listener = l
	s.serveErr = make(chan error, 1)
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server, errc chan<- error) {
		err := srv.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.log.Error("http server error", "error", err)
		}
		errc <- err
	}(s.http, s.serveErr)

	s.log.Info("http server listening", "addr", l.Addr().String())
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Address
	}
	return s.listener.Addr().String()
}

// Stop stops accepting requests and waits for in-flight ones until ctx is
// done. Upgraded WebSocket connections are owned by the relay and end with
// its shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, errc := s.http, s.serveErr
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return types.WrapError(types.ErrCodeTimeout, "http server shutdown", err)
	}
	err := <-errc
	s.log.Info("http server stopped")
	return err
}
