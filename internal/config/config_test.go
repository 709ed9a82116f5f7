package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "[::]:50051", cfg.GRPC.Address)
	assert.Equal(t, "tcp", cfg.GRPC.Network)
	assert.Equal(t, OverflowDropOldest, cfg.Relay.OverflowPolicy)
	assert.False(t, cfg.HTTP.Enabled)
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	path, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("waterloop-relay", "config.yaml"),
		filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))

	SetTestConfigPath("/tmp/relay-test.yaml")
	t.Cleanup(func() { SetTestConfigPath("") })
	path, err = GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/relay-test.yaml", path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "partial config gets defaults",
			content: `
relay:
  queue_size: 16
  overflow_policy: drop_newest
grpc:
  address: 127.0.0.1:6000
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 16, cfg.Relay.QueueSize)
				assert.Equal(t, OverflowDropNewest, cfg.Relay.OverflowPolicy)
				assert.Equal(t, "127.0.0.1:6000", cfg.GRPC.Address)
				assert.Equal(t, "tcp", cfg.GRPC.Network)
				assert.Equal(t, DefaultMaxMessageSize, cfg.GRPC.MaxRecvMsgSize)
				assert.Equal(t, 10*time.Second, cfg.Shutdown.Timeout)
			},
		},
		{
			name: "durations and http block",
			content: `
http:
  enabled: true
  address: 0.0.0.0:9000
  pong_wait: 15s
shutdown:
  timeout: 3s
`,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.HTTP.Enabled)
				assert.Equal(t, 15*time.Second, cfg.HTTP.PongWait)
				assert.Equal(t, 3*time.Second, cfg.Shutdown.Timeout)
			},
		},
		{
			name: "unix socket network",
			content: `
grpc:
  network: unix
  address: /tmp/relay.sock
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "unix", cfg.GRPC.Network)
			},
		},
		{
			name:    "bad overflow policy",
			content: "relay:\n  overflow_policy: block\n",
			wantErr: true,
		},
		{
			name:    "bad grpc network",
			content: "grpc:\n  network: udp\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			content: "relay: [unclosed\n",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			content: "   \n\t\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, dir, tt.content)
			cfg, err := LoadFromFile(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsErrCode(err, types.ErrCodeInvalid), "got %v", err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile("")
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "config.json"))
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, types.IsErrCode(err, types.ErrCodeNotFound))
}

func TestInterpolation(t *testing.T) {
	t.Setenv("RELAY_TEST_ADDR", "127.0.0.1:7001")
	path := writeConfig(t, t.TempDir(), `
grpc:
  address: ${RELAY_TEST_ADDR}
logging:
  level: ${RELAY_TEST_UNSET_LEVEL:-debug}
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.GRPC.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfigPrecedence(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
logging:
  level: warn
relay:
  queue_size: 32
`)

	t.Setenv(EnvQueueSize, "64")
	t.Setenv(EnvHTTPEnabled, "true")
	t.Setenv(EnvShutdownTimeout, "4s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level, "file value kept")
	assert.Equal(t, 64, cfg.Relay.QueueSize, "env beats file")
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 4*time.Second, cfg.Shutdown.Timeout)

	cfg.ApplyOverrides(OverrideOptions{QueueSize: 8, LogLevel: "debug", HTTPAddress: "127.0.0.1:9999"})
	assert.Equal(t, 8, cfg.Relay.QueueSize, "flag beats env")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Address)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	SetTestConfigPath(filepath.Join(t.TempDir(), "absent.yaml"))
	defer SetTestConfigPath("")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueSize, cfg.Relay.QueueSize)
}

func TestInvalidEnvOverride(t *testing.T) {
	SetTestConfigPath(filepath.Join(t.TempDir(), "absent.yaml"))
	defer SetTestConfigPath("")

	t.Setenv(EnvRateLimit, "fast")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("RELAY_TEST_DOTENV=from-file\n"), 0644))

	t.Setenv("RELAY_TEST_DOTENV", "")
	os.Unsetenv("RELAY_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("RELAY_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero queue", func(c *Config) { c.Relay.QueueSize = 0 }},
		{"negative rate", func(c *Config) { c.Relay.RateLimit = -1 }},
		{"rate without burst", func(c *Config) { c.Relay.RateBurst = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"tcp without port", func(c *Config) { c.GRPC.Address = "localhost" }},
		{"empty unix path", func(c *Config) { c.GRPC.Network = "unix"; c.GRPC.Address = "" }},
		{"zero shutdown", func(c *Config) { c.Shutdown.Timeout = 0 }},
		{"http bad address", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Address = "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
		})
	}
}
