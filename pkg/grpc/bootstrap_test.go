package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

func TestBootstrapRequiresRelay(t *testing.T) {
	_, err := Bootstrap(context.Background(), BootstrapConfig{Config: config.DefaultGRPCConfig()})
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestBootstrapInvalidAddress(t *testing.T) {
	cfg := config.DefaultGRPCConfig()
	cfg.Address = "no-port"
	_, err := Bootstrap(context.Background(), BootstrapConfig{Config: cfg, Relay: relay.NewServer(relay.Options{})})
	assert.Error(t, err)
}

func TestNewDefaultBootstrapConfig(t *testing.T) {
	r := relay.NewServer(relay.Options{})
	cfg := NewDefaultBootstrapConfig(config.DefaultGRPCConfig(), r, nil)

	assert.Equal(t, DefaultVersion, cfg.Version)
	assert.Same(t, r, cfg.Relay)
	assert.NotNil(t, cfg.Logger)
	assert.Len(t, cfg.Interceptors, 4)
}

func TestBootstrapServesAndStops(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	r := relay.NewServer(relay.Options{Logger: logger.Discard()})

	cfg := NewDefaultBootstrapConfig(config.DefaultGRPCConfig(), r, logger.Discard())
	cfg.Listener = lis
	result, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultVersion, result.Version)
	assert.Equal(t, "bufconn", result.Address)
	assert.True(t, IsReady(result.Server))
	require.NoError(t, WaitForReady(context.Background(), result.Server, time.Second, 10*time.Millisecond))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, result.Health.GetStatus(proto.ServiceName))
	assert.NotNil(t, result.Service)

	require.NoError(t, r.Shutdown(context.Background()))
	require.NoError(t, result.Stop())

	assert.False(t, IsReady(result.Server))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, result.Health.GetStatus(proto.ServiceName))

	var nilResult *BootstrapResult
	assert.NoError(t, nilResult.Stop())
}

func TestWaitForReady(t *testing.T) {
	err := WaitForReady(context.Background(), nil, time.Second, 0)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

	s, err := NewServer(ServerConfig{Listener: bufconn.Listen(1024)}, logger.Discard())
	require.NoError(t, err)
	assert.False(t, IsReady(s))

	err = WaitForReady(context.Background(), s, 50*time.Millisecond, 10*time.Millisecond)
	assert.True(t, types.IsErrCode(err, types.ErrCodeTimeout))
}
