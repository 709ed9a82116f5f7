package config

import (
	"os"
	"path/filepath"
	"time"
)

// testConfigPath is an override for the default config path used in testing
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// configDir returns the relay configuration directory (~/.config/waterloop-relay)
func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "waterloop-relay"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

const (
	// Environment variable names
	EnvLogLevel        = "RELAY_LOG_LEVEL"
	EnvLogFormat       = "RELAY_LOG_FORMAT"
	EnvLogOutput       = "RELAY_LOG_OUTPUT"
	EnvQueueSize       = "RELAY_QUEUE_SIZE"
	EnvOverflowPolicy  = "RELAY_OVERFLOW_POLICY"
	EnvRateLimit       = "RELAY_RATE_LIMIT"
	EnvRateBurst       = "RELAY_RATE_BURST"
	EnvGRPCNetwork     = "RELAY_GRPC_NETWORK"
	EnvGRPCAddress     = "RELAY_GRPC_ADDRESS"
	EnvHTTPEnabled     = "RELAY_HTTP_ENABLED"
	EnvHTTPAddress     = "RELAY_HTTP_ADDRESS"
	EnvShutdownTimeout = "RELAY_SHUTDOWN_TIMEOUT"
)

const (
	// OverflowDropOldest evicts the oldest queued message to make room
	OverflowDropOldest = "drop_oldest"
	// OverflowDropNewest discards the incoming message
	OverflowDropNewest = "drop_newest"
)

const (
	DefaultGRPCAddress    = "[::]:50051"
	DefaultHTTPAddress    = "127.0.0.1:8080"
	DefaultQueueSize      = 256
	DefaultMaxMessageSize = 4 * 1024 * 1024
)

// DefaultConfig returns a fully populated default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging:  DefaultLoggingConfig(),
		Relay:    DefaultRelayConfig(),
		GRPC:     DefaultGRPCConfig(),
		HTTP:     DefaultHTTPConfig(),
		Shutdown: defaultShutdownConfig(),
	}
}

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// DefaultRelayConfig returns the default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		QueueSize:        DefaultQueueSize,
		OverflowPolicy:   OverflowDropOldest,
		RateLimit:        100,
		RateBurst:        200,
		DrainTimeout:     2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// DefaultGRPCConfig returns the default gRPC configuration
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Network:          "tcp",
		Address:          DefaultGRPCAddress,
		MaxRecvMsgSize:   DefaultMaxMessageSize,
		MaxSendMsgSize:   DefaultMaxMessageSize,
		KeepaliveTime:    30 * time.Second,
		KeepaliveTimeout: 10 * time.Second,
		StopTimeout:      5 * time.Second,
	}
}

// DefaultHTTPConfig returns the default HTTP configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Enabled:         false,
		Address:         DefaultHTTPAddress,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    10 * time.Second,
		PongWait:        60 * time.Second,
	}
}

// defaultShutdownConfig returns the default shutdown configuration
func defaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 10 * time.Second,
	}
}
