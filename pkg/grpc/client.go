package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

const (
	// DefaultDialTimeout is the default timeout for dialing a connection
	DefaultDialTimeout = 10 * time.Second
	// DefaultRPCTimeout is the default timeout for unary calls
	DefaultRPCTimeout = 5 * time.Second
	// unixPrefix selects a Unix socket target, e.g. "unix:///run/relay.sock"
	unixPrefix = "unix://"
)

// Client is a gRPC connection to a relay
type Client struct {
	target         string
	conn           *grpc.ClientConn
	logger         *logger.Logger
	mu             sync.RWMutex
	closed         bool
	dialTimeout    time.Duration
	rpcTimeout     time.Duration
	maxRecvMsgSize int
	maxSendMsgSize int
	keepaliveTime  time.Duration
	dialOptions    []grpc.DialOption
	stats          ClientStats

	totalStreams atomic.Int64
	failedRPCs   atomic.Int64
}

// ClientStats represents client statistics
type ClientStats struct {
	ConnectTime  time.Time `json:"connect_time"`
	IsConnected  bool      `json:"is_connected"`
	TotalStreams int64     `json:"total_streams"`
	FailedRPCs   int64     `json:"failed_rpcs"`
}

// ClientConfig contains client configuration
type ClientConfig struct {
	DialTimeout    time.Duration
	RPCTimeout     time.Duration
	MaxRecvMsgSize int
	MaxSendMsgSize int
	// KeepaliveTime enables client pings on idle connections when positive
	KeepaliveTime time.Duration
	DialOptions   []grpc.DialOption
}

// NewClient creates a client for target, a host:port or unix:// address
func NewClient(target string, cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if target == "" {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "target cannot be empty")
	}
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}

	c := &Client{
		target:         target,
		logger:         log.With("component", "grpc_client", "target", target),
		dialTimeout:    cfg.DialTimeout,
		rpcTimeout:     cfg.RPCTimeout,
		maxRecvMsgSize: cfg.MaxRecvMsgSize,
		maxSendMsgSize: cfg.MaxSendMsgSize,
		keepaliveTime:  cfg.KeepaliveTime,
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = DefaultDialTimeout
	}
	if c.rpcTimeout <= 0 {
		c.rpcTimeout = DefaultRPCTimeout
	}
	if c.maxRecvMsgSize <= 0 {
		c.maxRecvMsgSize = DefaultMaxRecvMsgSize
	}
	if c.maxSendMsgSize <= 0 {
		c.maxSendMsgSize = DefaultMaxSendMsgSize
	}
	c.dialOptions = append(c.buildDialOptions(), cfg.DialOptions...)

	return c, nil
}

// buildDialOptions constructs the gRPC dial options
func (c *Client) buildDialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.maxRecvMsgSize),
			grpc.MaxCallSendMsgSize(c.maxSendMsgSize),
		),
	}
	if strings.HasPrefix(c.target, unixPrefix) {
		path := strings.TrimPrefix(c.target, unixPrefix)
		opts = append(opts, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}))
	}
	if c.keepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.keepaliveTime,
			Timeout:             c.keepaliveTime / 3,
			PermitWithoutStream: true,
		}))
	}
	return opts
}

// dialTarget is the name handed to grpc.NewClient. Unix targets go through
// the custom dialer, so the resolver only needs a passthrough name.
func (c *Client) dialTarget() string {
	if strings.HasPrefix(c.target, unixPrefix) {
		return "passthrough:///" + strings.TrimPrefix(c.target, unixPrefix)
	}
	if strings.Contains(c.target, "://") || strings.HasPrefix(c.target, "passthrough:") {
		return c.target
	}
	return "passthrough:///" + c.target
}

// Dial connects and waits until the channel is ready or the dial timeout
// passes
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.NewError(types.ErrCodeUnavailable, "client is closed")
	}
	if c.conn != nil && c.conn.GetState() == connectivity.Ready {
		c.mu.Unlock()
		return types.NewError(types.ErrCodeInvalid, "already connected")
	}
	old := c.conn
	c.conn = nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	conn, err := grpc.NewClient(c.dialTarget(), c.dialOptions...)
	if err != nil {
		return types.WrapError(types.ErrCodeInvalidArgument, "failed to create gRPC client", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	if err := waitReady(dialCtx, conn); err != nil {
		_ = conn.Close()
		c.logger.Debug("Failed to reach relay", "error", err)
		return types.WrapError(types.ErrCodeUnavailable, "failed to connect to "+c.target, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return types.NewError(types.ErrCodeUnavailable, "client is closed")
	}
	c.conn = conn
	c.stats.ConnectTime = time.Now()
	c.stats.IsConnected = true
	c.mu.Unlock()

	c.logger.Info("Connected to relay")
	return nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return types.NewError(types.ErrCodeUnavailable, "connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// OpenStream opens the stream bound to role. The well-known roles use their
// dedicated methods; any other role goes through Connect with the role in
// request metadata.
func (c *Client) OpenStream(ctx context.Context, role types.Role) (proto.HostControl_ConnectClient, error) {
	conn := c.GetConn()
	if conn == nil {
		return nil, types.NewError(types.ErrCodeUnavailable, "client not connected")
	}

	hc := proto.NewHostControlClient(conn)
	var (
		stream proto.HostControl_ConnectClient
		err    error
	)
	switch role {
	case types.RoleTelemetry:
		stream, err = hc.TelemetryStream(ctx)
	case types.RoleDashboard:
		stream, err = hc.CommandStream(ctx)
	case types.RoleMotorControl:
		stream, err = hc.MotorControlStream(ctx)
	default:
		if !role.IsEmpty() {
			ctx = metadata.AppendToOutgoingContext(ctx, RoleMetadataKey, role.String())
		}
		stream, err = hc.Connect(ctx)
	}
	if err != nil {
		c.failedRPCs.Add(1)
		return nil, types.WrapError(types.ErrCodeUnavailable, "failed to open stream", err)
	}
	c.totalStreams.Add(1)
	return stream, nil
}

// HealthCheck checks the overall serving status of the relay
func (c *Client) HealthCheck(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
	conn := c.GetConn()
	if conn == nil {
		return nil, types.NewError(types.ErrCodeUnavailable, "client not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		c.failedRPCs.Add(1)
		return nil, types.WrapError(types.ErrCodeUnavailable, "health check failed", err)
	}
	return resp, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.NewError(types.ErrCodeInvalid, "client already closed")
	}
	c.closed = true
	c.stats.IsConnected = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return types.WrapError(types.ErrCodeInternal, "failed to close connection", err)
		}
	}
	c.logger.Debug("gRPC client closed")
	return nil
}

// GetConn returns the underlying grpc.ClientConn
func (c *Client) GetConn() *grpc.ClientConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// GetState returns the current connection state
func (c *Client) GetState() connectivity.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return connectivity.Idle
	}
	return c.conn.GetState()
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.GetState() == connectivity.Ready
}

// Stats returns the current client statistics
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	stats := c.stats
	stats.IsConnected = c.conn != nil && c.conn.GetState() == connectivity.Ready
	c.mu.RUnlock()

	stats.TotalStreams = c.totalStreams.Load()
	stats.FailedRPCs = c.failedRPCs.Load()
	return stats
}

// Target returns the address the client dials
func (c *Client) Target() string {
	return c.target
}

// String returns a string representation of the client
func (c *Client) String() string {
	stats := c.Stats()
	return fmt.Sprintf("Client{Target: %s, Connected: %v, ConnectTime: %v}",
		c.target, stats.IsConnected, stats.ConnectTime)
}
