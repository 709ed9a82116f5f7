package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

const (
	// DefaultMaxRecvMsgSize is the default maximum message size for receiving (in bytes)
	DefaultMaxRecvMsgSize = 4 * 1024 * 1024
	// DefaultMaxSendMsgSize is the default maximum message size for sending (in bytes)
	DefaultMaxSendMsgSize = 4 * 1024 * 1024
	// DefaultKeepaliveTime is how long a connection may idle before the server pings it
	DefaultKeepaliveTime = 30 * time.Second
	// DefaultKeepaliveTimeout is how long the server waits for a ping ack
	DefaultKeepaliveTimeout = 10 * time.Second
	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 5 * time.Second
)

// isClosedConnError checks if an error indicates a connection is already closed
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "closed network connection")
}

// Server is a gRPC server listening on TCP or a Unix socket
type Server struct {
	network         string
	address         string
	listener        net.Listener
	server          *grpc.Server
	logger          *logger.Logger
	mu              sync.RWMutex
	closed          bool
	wg              sync.WaitGroup
	shutdownTimeout time.Duration
	maxRecvMsgSize  int
	maxSendMsgSize  int
	keepaliveTime   time.Duration
	keepaliveWait   time.Duration
	interceptors    []grpc.ServerOption
	started         bool
	stats           ServerStats

	activeStreams atomic.Int64
	totalStreams  atomic.Int64
	totalRPCs     atomic.Int64
}

// ServerStats represents server statistics
type ServerStats struct {
	StartTime     time.Time `json:"start_time"`
	Address       string    `json:"address"`
	ActiveStreams int64     `json:"active_streams"`
	TotalStreams  int64     `json:"total_streams"`
	TotalRPCs     int64     `json:"total_rpcs"`
	IsServing     bool      `json:"is_serving"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	// Network is "tcp" or "unix"
	Network string
	Address string
	// Listener, if set, is served instead of listening on Network/Address
	Listener         net.Listener
	MaxRecvMsgSize   int
	MaxSendMsgSize   int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	ShutdownTimeout  time.Duration
	Interceptors     []grpc.ServerOption
}

// NewServer creates a new gRPC server. Nothing is bound until Start.
func NewServer(cfg ServerConfig, log *logger.Logger) (*Server, error) {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}

	network := cfg.Network
	if network == "" {
		network = "tcp"
	}
	if cfg.Listener == nil {
		switch network {
		case "tcp", "tcp4", "tcp6":
			if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
				return nil, types.WrapError(types.ErrCodeInvalidArgument, "invalid listen address", err)
			}
		case "unix":
			if cfg.Address == "" {
				return nil, types.NewError(types.ErrCodeInvalidArgument, "unix socket path cannot be empty")
			}
			if err := removeStaleSocket(cfg.Address); err != nil {
				return nil, err
			}
		default:
			return nil, types.NewError(types.ErrCodeInvalidArgument, "unsupported network: "+network)
		}
	}

	maxRecvSize := cfg.MaxRecvMsgSize
	if maxRecvSize <= 0 {
		maxRecvSize = DefaultMaxRecvMsgSize
	}
	maxSendSize := cfg.MaxSendMsgSize
	if maxSendSize <= 0 {
		maxSendSize = DefaultMaxSendMsgSize
	}
	kaTime := cfg.KeepaliveTime
	if kaTime <= 0 {
		kaTime = DefaultKeepaliveTime
	}
	kaTimeout := cfg.KeepaliveTimeout
	if kaTimeout <= 0 {
		kaTimeout = DefaultKeepaliveTimeout
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	address := cfg.Address
	if cfg.Listener != nil {
		address = cfg.Listener.Addr().String()
	}

	s := &Server{
		network:         network,
		address:         address,
		listener:        cfg.Listener,
		logger:          log.With("component", "grpc_server", "address", address),
		shutdownTimeout: shutdownTimeout,
		maxRecvMsgSize:  maxRecvSize,
		maxSendMsgSize:  maxSendSize,
		keepaliveTime:   kaTime,
		keepaliveWait:   kaTimeout,
		interceptors:    cfg.Interceptors,
	}

	s.server = grpc.NewServer(s.buildServerOptions()...)

	s.logger.Info("gRPC server initialized",
		"network", network,
		"max_recv_msg_size", s.maxRecvMsgSize,
		"max_send_msg_size", s.maxSendMsgSize,
		"keepalive_time", s.keepaliveTime.String(),
		"shutdown_timeout", s.shutdownTimeout.String())

	return s, nil
}

// removeStaleSocket deletes a leftover socket or regular file at path.
// Directories and other file types are left alone and reported.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.WrapError(types.ErrCodeInternal, "failed to stat existing path at socket path", err)
	}
	mode := fi.Mode()
	if mode&os.ModeSocket == 0 && !mode.IsRegular() {
		return types.NewError(types.ErrCodeInternal,
			fmt.Sprintf("existing path at socket path is of unsafe type %v; refusing to remove", mode))
	}
	if err := os.Remove(path); err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to remove existing file at socket path", err)
	}
	return nil
}

// buildServerOptions constructs the gRPC server options
func (s *Server) buildServerOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(s.maxRecvMsgSize),
		grpc.MaxSendMsgSize(s.maxSendMsgSize),
		grpc.Creds(insecure.NewCredentials()),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.keepaliveTime,
			Timeout: s.keepaliveWait,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             s.keepaliveTime / 2,
			PermitWithoutStream: true,
		}),
		grpc.ChainStreamInterceptor(s.countStreams),
		grpc.ChainUnaryInterceptor(s.countRPCs),
	}

	opts = append(opts, s.interceptors...)
	return opts
}

func (s *Server) countStreams(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	s.totalStreams.Add(1)
	s.activeStreams.Add(1)
	defer s.activeStreams.Add(-1)
	return handler(srv, stream)
}

func (s *Server) countRPCs(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	s.totalRPCs.Add(1)
	return handler(ctx, req)
}

// Start binds the listener and begins serving in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.NewError(types.ErrCodeUnavailable, "server is closed")
	}
	if s.started {
		s.mu.Unlock()
		return types.NewError(types.ErrCodeInvalid, "server already started")
	}
	s.started = true
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, s.network, s.address)
		if err != nil {
			s.mu.Lock()
			s.started = false
			s.mu.Unlock()
			return types.WrapError(types.ErrCodeUnavailable, "failed to listen on "+s.address, err)
		}
		listener = l
	}

	s.mu.Lock()
	s.listener = listener
	s.address = listener.Addr().String()
	s.stats.StartTime = time.Now()
	s.stats.IsServing = true
	s.mu.Unlock()

	s.logger.Info("gRPC server listening", "network", s.network, "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.serve(listener)

	return nil
}

func (s *Server) serve(listener net.Listener) {
	defer s.wg.Done()

	if err := s.server.Serve(listener); err != nil {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()

		if !closed {
			s.logger.Error("gRPC server error", "error", err)
		}
	}
}

// RegisterService registers a gRPC service with the server
func (s *Server) RegisterService(sd *grpc.ServiceDesc, impl any) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return types.NewError(types.ErrCodeUnavailable, "server is closed")
	}
	s.mu.RUnlock()

	s.server.RegisterService(sd, impl)
	s.logger.Debug("Service registered", "service", sd.ServiceName)
	return nil
}

// GetServer returns the underlying grpc.Server for direct use
func (s *Server) GetServer() *grpc.Server {
	return s.server
}

// Stop drains in-flight streams for up to the shutdown timeout, then
// cancels whatever is left.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.NewError(types.ErrCodeInvalid, "server already closed")
	}
	s.closed = true
	s.stats.IsServing = false
	listener := s.listener
	s.mu.Unlock()

	s.logger.Info("Stopping gRPC server")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("gRPC server shutdown timeout, stopping immediately",
			"active_streams", s.activeStreams.Load())
		s.server.Stop()
		<-done
	}

	if listener != nil {
		if err := listener.Close(); err != nil && !isClosedConnError(err) {
			s.logger.Error("Failed to close listener", "error", err)
		}
	}

	s.wg.Wait()

	if s.network == "unix" && s.address != "" {
		if err := os.Remove(s.address); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove socket file", "path", s.address, "error", err)
		}
	}

	s.logger.Info("gRPC server closed")
	return nil
}

// Stats returns the current server statistics
func (s *Server) Stats() ServerStats {
	s.mu.RLock()
	stats := s.stats
	stats.Address = s.address
	s.mu.RUnlock()

	stats.ActiveStreams = s.activeStreams.Load()
	stats.TotalStreams = s.totalStreams.Load()
	stats.TotalRPCs = s.totalRPCs.Load()
	return stats
}

// IsServing returns true if the server is currently serving
func (s *Server) IsServing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.IsServing && !s.closed
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// String returns a string representation of the server
func (s *Server) String() string {
	stats := s.Stats()
	return fmt.Sprintf("Server{Network: %s, Address: %s, IsServing: %v, ActiveStreams: %d}",
		s.network, stats.Address, stats.IsServing, stats.ActiveStreams)
}
