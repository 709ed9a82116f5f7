package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	grpc_health "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

// DefaultVersion is reported by the relay binaries
const DefaultVersion = "0.1.0"

// BootstrapResult contains the result of a gRPC bootstrap operation
type BootstrapResult struct {
	Server    *Server
	Health    *HealthServer
	Service   *HostService
	StartedAt time.Time
	Version   string
	Address   string
}

// BootstrapConfig contains configuration for the gRPC bootstrap process
type BootstrapConfig struct {
	Config  config.GRPCConfig
	Relay   *relay.Server
	Logger  *logger.Logger
	Version string
	// Listener, if set, replaces Config.Network/Address. Tests pass a bufconn.
	Listener     net.Listener
	Interceptors []grpc.ServerOption
}

// NewDefaultBootstrapConfig creates a bootstrap configuration with the
// default interceptor chain
func NewDefaultBootstrapConfig(cfg config.GRPCConfig, r *relay.Server, log *logger.Logger) BootstrapConfig {
	if log == nil {
		log = logger.Discard()
	}
	return BootstrapConfig{
		Config:       cfg,
		Relay:        r,
		Logger:       log,
		Version:      DefaultVersion,
		Interceptors: ServerInterceptors(log, DefaultInterceptorConfig()),
	}
}

// Bootstrap creates the gRPC server, registers HostControl and health, and
// starts serving. It performs the following steps:
// 1. Creates the gRPC server on the configured listener
// 2. Creates the health server
// 3. Registers HostControl over the relay
// 4. Starts the server and marks everything SERVING
func Bootstrap(ctx context.Context, cfg BootstrapConfig) (*BootstrapResult, error) {
	startedAt := time.Now()

	if cfg.Relay == nil {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "relay server is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}

	server, err := NewServer(ServerConfig{
		Network:          cfg.Config.Network,
		Address:          cfg.Config.Address,
		Listener:         cfg.Listener,
		MaxRecvMsgSize:   cfg.Config.MaxRecvMsgSize,
		MaxSendMsgSize:   cfg.Config.MaxSendMsgSize,
		KeepaliveTime:    cfg.Config.KeepaliveTime,
		KeepaliveTimeout: cfg.Config.KeepaliveTimeout,
		ShutdownTimeout:  cfg.Config.StopTimeout,
		Interceptors:     cfg.Interceptors,
	}, log)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInternal, "failed to create gRPC server", err)
	}

	health, err := NewHealthServer(HealthServerConfig{
		InitialStatuses: map[string]grpc_health.HealthCheckResponse_ServingStatus{
			"":                grpc_health.HealthCheckResponse_NOT_SERVING,
			proto.ServiceName: grpc_health.HealthCheckResponse_NOT_SERVING,
		},
	}, log)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInternal, "failed to create health server", err)
	}
	grpc_health.RegisterHealthServer(server.GetServer(), health)

	svc := NewHostService(cfg.Relay, log)
	if err := server.RegisterService(&proto.HostControl_ServiceDesc, svc); err != nil {
		return nil, types.WrapError(types.ErrCodeInternal, "failed to register HostControl service", err)
	}

	if err := server.Start(ctx); err != nil {
		return nil, err
	}

	health.SetServing("")
	health.SetServing(proto.ServiceName)

	result := &BootstrapResult{
		Server:    server,
		Health:    health,
		Service:   svc,
		StartedAt: startedAt,
		Version:   version,
		Address:   server.Addr(),
	}

	log.Info("gRPC server bootstrapped successfully",
		"version", version,
		"address", result.Address,
		"duration", time.Since(startedAt))

	return result, nil
}

// Stop reports NOT_SERVING to health watchers, then stops the server. Call
// it after the relay has shut down so streams are already drained.
func (r *BootstrapResult) Stop() error {
	if r == nil || r.Server == nil {
		return nil
	}
	if r.Health != nil {
		r.Health.Shutdown()
	}
	return r.Server.Stop()
}

// IsReady checks if the gRPC server is ready to accept requests
func IsReady(server *Server) bool {
	return server != nil && server.IsServing()
}

// WaitForReady waits for the gRPC server to be ready with a timeout
func WaitForReady(ctx context.Context, server *Server, timeout time.Duration, checkInterval time.Duration) error {
	if server == nil {
		return types.NewError(types.ErrCodeInvalidArgument, "gRPC server is nil")
	}
	if checkInterval == 0 {
		checkInterval = 100 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		if IsReady(server) {
			return nil
		}
		select {
		case <-ctx.Done():
			return types.WrapError(types.ErrCodeTimeout, "gRPC server not ready within timeout", ctx.Err())
		case <-ticker.C:
		}
	}
}
