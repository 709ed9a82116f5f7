package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// Config represents the relay's configuration
type Config struct {
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Relay    RelayConfig    `json:"relay" yaml:"relay"`
	GRPC     GRPCConfig     `json:"grpc" yaml:"grpc"`
	HTTP     HTTPConfig     `json:"http" yaml:"http"`
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// RelayConfig contains per-session queueing and admission settings
type RelayConfig struct {
	QueueSize        int           `json:"queue_size" yaml:"queue_size"`
	OverflowPolicy   string        `json:"overflow_policy" yaml:"overflow_policy"`
	RateLimit        float64       `json:"rate_limit" yaml:"rate_limit"`
	RateBurst        int           `json:"rate_burst" yaml:"rate_burst"`
	DrainTimeout     time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
}

// GRPCConfig contains gRPC listener configuration
type GRPCConfig struct {
	Network          string        `json:"network" yaml:"network"`
	Address          string        `json:"address" yaml:"address"`
	MaxRecvMsgSize   int           `json:"max_recv_msg_size" yaml:"max_recv_msg_size"`
	MaxSendMsgSize   int           `json:"max_send_msg_size" yaml:"max_send_msg_size"`
	KeepaliveTime    time.Duration `json:"keepalive_time" yaml:"keepalive_time"`
	KeepaliveTimeout time.Duration `json:"keepalive_timeout" yaml:"keepalive_timeout"`
	StopTimeout      time.Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

// HTTPConfig contains the status API and WebSocket listener configuration
type HTTPConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Address         string        `json:"address" yaml:"address"`
	ReadBufferSize  int           `json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size" yaml:"write_buffer_size"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PongWait        time.Duration `json:"pong_wait" yaml:"pong_wait"`
	AllowedOrigins  []string      `json:"allowed_origins" yaml:"allowed_origins"`
}

// ShutdownConfig bounds graceful shutdown
type ShutdownConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// applyDefaults fills zero-valued fields left unset by a YAML file
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}

	if cfg.Relay.QueueSize == 0 {
		cfg.Relay.QueueSize = def.Relay.QueueSize
	}
	if cfg.Relay.OverflowPolicy == "" {
		cfg.Relay.OverflowPolicy = def.Relay.OverflowPolicy
	}
	if cfg.Relay.RateLimit == 0 {
		cfg.Relay.RateLimit = def.Relay.RateLimit
	}
	if cfg.Relay.RateBurst == 0 {
		cfg.Relay.RateBurst = def.Relay.RateBurst
	}
	if cfg.Relay.DrainTimeout == 0 {
		cfg.Relay.DrainTimeout = def.Relay.DrainTimeout
	}
	if cfg.Relay.HandshakeTimeout == 0 {
		cfg.Relay.HandshakeTimeout = def.Relay.HandshakeTimeout
	}

	if cfg.GRPC.Network == "" {
		cfg.GRPC.Network = def.GRPC.Network
	}
	if cfg.GRPC.Address == "" {
		cfg.GRPC.Address = def.GRPC.Address
	}
	if cfg.GRPC.MaxRecvMsgSize == 0 {
		cfg.GRPC.MaxRecvMsgSize = def.GRPC.MaxRecvMsgSize
	}
	if cfg.GRPC.MaxSendMsgSize == 0 {
		cfg.GRPC.MaxSendMsgSize = def.GRPC.MaxSendMsgSize
	}
	if cfg.GRPC.KeepaliveTime == 0 {
		cfg.GRPC.KeepaliveTime = def.GRPC.KeepaliveTime
	}
	if cfg.GRPC.KeepaliveTimeout == 0 {
		cfg.GRPC.KeepaliveTimeout = def.GRPC.KeepaliveTimeout
	}
	if cfg.GRPC.StopTimeout == 0 {
		cfg.GRPC.StopTimeout = def.GRPC.StopTimeout
	}

	// http.enabled is an explicit bool; an omitted block keeps it off
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = def.HTTP.Address
	}
	if cfg.HTTP.ReadBufferSize == 0 {
		cfg.HTTP.ReadBufferSize = def.HTTP.ReadBufferSize
	}
	if cfg.HTTP.WriteBufferSize == 0 {
		cfg.HTTP.WriteBufferSize = def.HTTP.WriteBufferSize
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = def.HTTP.WriteTimeout
	}
	if cfg.HTTP.PongWait == 0 {
		cfg.HTTP.PongWait = def.HTTP.PongWait
	}

	if cfg.Shutdown.Timeout == 0 {
		cfg.Shutdown.Timeout = def.Shutdown.Timeout
	}
}

// applyEnvOverrides applies RELAY_* environment variables on top of cfg
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	if v := os.Getenv(EnvQueueSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvQueueSize, err)
		}
		cfg.Relay.QueueSize = n
	}
	if v := os.Getenv(EnvOverflowPolicy); v != "" {
		cfg.Relay.OverflowPolicy = v
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvRateLimit, err)
		}
		cfg.Relay.RateLimit = f
	}
	if v := os.Getenv(EnvRateBurst); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvRateBurst, err)
		}
		cfg.Relay.RateBurst = n
	}

	if v := os.Getenv(EnvGRPCNetwork); v != "" {
		cfg.GRPC.Network = v
	}
	if v := os.Getenv(EnvGRPCAddress); v != "" {
		cfg.GRPC.Address = v
	}

	if v := os.Getenv(EnvHTTPEnabled); v != "" {
		cfg.HTTP.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv(EnvHTTPAddress); v != "" {
		cfg.HTTP.Address = v
	}

	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvShutdownTimeout, err)
		}
		cfg.Shutdown.Timeout = d
	}

	return nil
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to check env file: %w", err)
		}
		if err := godotenv.Load(p); err != nil {
			return types.WrapError(types.ErrCodeInvalid, "failed to load env file "+p, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path (or the
// default location when path is empty and the file exists), and RELAY_*
// environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	var cfg *Config

	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if defPath, err := GetDefaultConfigPath(); err == nil {
		if _, err := os.Stat(defPath); err == nil {
			loaded, err := LoadFromFile(defPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to check config file: %w", err)
		}
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log format: %s (must be json or text)", c.Logging.Format))
	}

	if c.Relay.QueueSize <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "relay queue size must be positive")
	}
	if c.Relay.OverflowPolicy != OverflowDropOldest && c.Relay.OverflowPolicy != OverflowDropNewest {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid overflow policy: %s (must be %s or %s)", c.Relay.OverflowPolicy, OverflowDropOldest, OverflowDropNewest))
	}
	if c.Relay.RateLimit < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "relay rate limit cannot be negative")
	}
	if c.Relay.RateLimit > 0 && c.Relay.RateBurst <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "relay rate burst must be positive when a rate limit is set")
	}
	if c.Relay.DrainTimeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "relay drain timeout must be positive")
	}
	if c.Relay.HandshakeTimeout < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "relay handshake timeout cannot be negative")
	}

	switch c.GRPC.Network {
	case "tcp":
		if _, _, err := net.SplitHostPort(c.GRPC.Address); err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid grpc address: "+c.GRPC.Address, err)
		}
	case "unix":
		if c.GRPC.Address == "" {
			return types.NewError(types.ErrCodeInvalidArgument, "grpc socket path cannot be empty")
		}
	default:
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid grpc network: %s (must be tcp or unix)", c.GRPC.Network))
	}
	if c.GRPC.MaxRecvMsgSize <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "grpc max recv message size must be positive")
	}
	if c.GRPC.MaxSendMsgSize <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "grpc max send message size must be positive")
	}
	if c.GRPC.KeepaliveTime < 0 || c.GRPC.KeepaliveTimeout < 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "grpc keepalive durations cannot be negative")
	}

	if c.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid http address: "+c.HTTP.Address, err)
		}
		if c.HTTP.PongWait <= 0 {
			return types.NewError(types.ErrCodeInvalidArgument, "http pong wait must be positive")
		}
	}

	if c.Shutdown.Timeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "shutdown timeout must be positive")
	}

	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, Relay: %s, GRPC: %s, HTTP: %s, Shutdown: %s}",
		c.Logging.String(), c.Relay.String(), c.GRPC.String(), c.HTTP.String(), c.Shutdown.Timeout)
}

// ApplyOverrides applies CLI flag values after defaults, file and
// environment have been resolved.
func (c *Config) ApplyOverrides(opts OverrideOptions) {
	if opts.LogLevel != "" {
		c.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		c.Logging.Format = opts.LogFormat
	}
	if opts.LogOutput != "" {
		c.Logging.Output = opts.LogOutput
	}

	if opts.GRPCNetwork != "" {
		c.GRPC.Network = opts.GRPCNetwork
	}
	if opts.GRPCAddress != "" {
		c.GRPC.Address = opts.GRPCAddress
	}

	if opts.HTTPAddress != "" {
		c.HTTP.Address = opts.HTTPAddress
		c.HTTP.Enabled = true
	}

	if opts.QueueSize > 0 {
		c.Relay.QueueSize = opts.QueueSize
	}
	if opts.OverflowPolicy != "" {
		c.Relay.OverflowPolicy = opts.OverflowPolicy
	}
}

// OverrideOptions contains override options typically set via CLI flags
type OverrideOptions struct {
	LogLevel  string
	LogFormat string
	LogOutput string

	GRPCNetwork string
	GRPCAddress string

	HTTPAddress string

	QueueSize      int
	OverflowPolicy string
}

// String returns a string representation
func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}", c.Level, c.Format, c.Output)
}

// String returns a string representation
func (c RelayConfig) String() string {
	return fmt.Sprintf("RelayConfig{QueueSize: %d, OverflowPolicy: %s, RateLimit: %g, RateBurst: %d, DrainTimeout: %s}",
		c.QueueSize, c.OverflowPolicy, c.RateLimit, c.RateBurst, c.DrainTimeout)
}

// String returns a string representation
func (c GRPCConfig) String() string {
	return fmt.Sprintf("GRPCConfig{Network: %s, Address: %s, MaxRecvMsgSize: %d, MaxSendMsgSize: %d}",
		c.Network, c.Address, c.MaxRecvMsgSize, c.MaxSendMsgSize)
}

// String returns a string representation
func (c HTTPConfig) String() string {
	return fmt.Sprintf("HTTPConfig{Enabled: %t, Address: %s}", c.Enabled, c.Address)
}
