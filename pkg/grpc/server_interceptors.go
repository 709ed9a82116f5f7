package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
)

// InterceptorConfig contains configuration for server interceptors
type InterceptorConfig struct {
	// EnableLogging enables the logging interceptors
	EnableLogging bool
	// EnableRecovery turns handler panics into Internal errors
	EnableRecovery bool
	// LogAllRequests logs successful calls at debug, not just failures
	LogAllRequests bool
	// ExcludeMethods are full method names never logged, e.g. health checks
	ExcludeMethods []string
}

// DefaultInterceptorConfig returns default interceptor configuration
func DefaultInterceptorConfig() InterceptorConfig {
	return InterceptorConfig{
		EnableLogging:  true,
		EnableRecovery: true,
		LogAllRequests: true,
		ExcludeMethods: []string{"/grpc.health.v1.Health/Check"},
	}
}

type loggingInterceptorConfig struct {
	logger         *logger.Logger
	logAll         bool
	excludeMethods map[string]bool
}

func newLoggingConfig(log *logger.Logger, cfg InterceptorConfig) loggingInterceptorConfig {
	exclude := make(map[string]bool, len(cfg.ExcludeMethods))
	for _, m := range cfg.ExcludeMethods {
		exclude[m] = true
	}
	return loggingInterceptorConfig{
		logger:         log.With("component", "grpc_logging_interceptor"),
		logAll:         cfg.LogAllRequests,
		excludeMethods: exclude,
	}
}

// ServerInterceptors builds the option set selected by cfg
func ServerInterceptors(log *logger.Logger, cfg InterceptorConfig) []grpc.ServerOption {
	var opts []grpc.ServerOption
	if cfg.EnableRecovery {
		opts = append(opts, NewRecoveryInterceptor(log), NewStreamRecoveryInterceptor(log))
	}
	if cfg.EnableLogging {
		opts = append(opts, NewLoggingInterceptor(log, cfg), NewStreamLoggingInterceptor(log, cfg))
	}
	return opts
}

// NewLoggingInterceptor creates a unary logging interceptor
func NewLoggingInterceptor(log *logger.Logger, cfg InterceptorConfig) grpc.ServerOption {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return grpc.EmptyServerOption{}
		}
	}
	return grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(newLoggingConfig(log, cfg)))
}

// NewStreamLoggingInterceptor creates a stream logging interceptor
func NewStreamLoggingInterceptor(log *logger.Logger, cfg InterceptorConfig) grpc.ServerOption {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return grpc.EmptyServerOption{}
		}
	}
	return grpc.ChainStreamInterceptor(loggingStreamInterceptor(newLoggingConfig(log, cfg)))
}

// NewRecoveryInterceptor converts unary handler panics into codes.Internal
func NewRecoveryInterceptor(log *logger.Logger) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(recoveryUnaryInterceptor(log))
}

// NewStreamRecoveryInterceptor converts stream handler panics into
// codes.Internal so one misbehaving stream does not take the process down.
func NewStreamRecoveryInterceptor(log *logger.Logger) grpc.ServerOption {
	return grpc.ChainStreamInterceptor(recoveryStreamInterceptor(log))
}

func recoveryUnaryInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "grpc_recovery_interceptor")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "grpc_recovery_interceptor")
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(log, info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}

func recovered(log *logger.Logger, method string, r any) error {
	log.Error("Handler panicked", "method", method, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	return status.Errorf(codes.Internal, "internal error in %s", method)
}

// peerAddr returns the remote address recorded on ctx, or "unknown"
func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// metadataValue returns the first value of key in the incoming metadata
func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// loggingUnaryInterceptor logs unary RPC calls
func loggingUnaryInterceptor(cfg loggingInterceptorConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.excludeMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			st, _ := status.FromError(err)
			cfg.logger.Error("RPC failed",
				"method", info.FullMethod,
				"peer", peerAddr(ctx),
				"code", st.Code().String(),
				"message", st.Message(),
				"duration_ms", duration.Milliseconds())
		} else if cfg.logAll {
			cfg.logger.Debug("RPC completed",
				"method", info.FullMethod,
				"response_type", fmt.Sprintf("%T", resp),
				"duration_ms", duration.Milliseconds())
		}
		return resp, err
	}
}

// loggingStreamInterceptor logs streaming RPC calls
func loggingStreamInterceptor(cfg loggingInterceptorConfig) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.excludeMethods[info.FullMethod] {
			return handler(srv, stream)
		}
		start := time.Now()
		addr := peerAddr(stream.Context())

		cfg.logger.Debug("Stream started",
			"method", info.FullMethod,
			"peer", addr)

		err := handler(srv, stream)
		duration := time.Since(start)

		if err != nil {
			st, _ := status.FromError(err)
			level := cfg.logger.Warn
			if st.Code() == codes.Internal || st.Code() == codes.Unknown {
				level = cfg.logger.Error
			}
			level("Stream failed",
				"method", info.FullMethod,
				"peer", addr,
				"code", st.Code().String(),
				"message", st.Message(),
				"duration_ms", duration.Milliseconds())
		} else if cfg.logAll {
			cfg.logger.Debug("Stream completed",
				"method", info.FullMethod,
				"peer", addr,
				"duration_ms", duration.Milliseconds())
		}
		return err
	}
}
