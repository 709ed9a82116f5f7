package config

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloaderReload(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "logging:\n  level: info\n")
	initial, err := Load(path)
	require.NoError(t, err)

	r := NewReloader(path, initial, nil)
	var seen atomic.Value
	r.AddCallback(func(ctx context.Context, cfg *Config) error {
		seen.Store(cfg.Logging.Level)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))
	require.NoError(t, r.Reload(context.Background()))

	assert.Equal(t, "debug", seen.Load())
	assert.Equal(t, "debug", r.GetConfig().Logging.Level)
	assert.Equal(t, ReloadStateIdle, r.State())
}

func TestReloaderCallbackFailureKeepsConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "relay:\n  queue_size: 10\n")
	initial, err := Load(path)
	require.NoError(t, err)

	r := NewReloader(path, initial, nil)
	r.AddCallback(func(ctx context.Context, cfg *Config) error {
		return errors.New("rejected")
	})

	require.NoError(t, os.WriteFile(path, []byte("relay:\n  queue_size: 20\n"), 0644))
	require.Error(t, r.Reload(context.Background()))
	assert.Equal(t, 10, r.GetConfig().Relay.QueueSize)
	assert.False(t, r.IsReloading())
}

func TestReloaderInvalidFileKeepsConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "relay:\n  queue_size: 10\n")
	initial, err := Load(path)
	require.NoError(t, err)

	r := NewReloader(path, initial, nil)
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  overflow_policy: block\n"), 0644))
	require.Error(t, r.Reload(context.Background()))
	assert.Same(t, initial, r.GetConfig())
}

func TestReloaderWatchesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "relay:\n  rate_limit: 5\n  rate_burst: 5\n")
	initial, err := Load(path)
	require.NoError(t, err)

	r := NewReloader(path, initial, nil)
	r.debounce = 20 * time.Millisecond

	var calls atomic.Int32
	r.AddCallback(func(ctx context.Context, cfg *Config) error {
		if cfg.Relay.RateLimit == 50 {
			calls.Add(1)
		}
		return nil
	})

	require.NoError(t, r.Start())
	defer r.Stop()

	require.NoError(t, os.WriteFile(path, []byte("relay:\n  rate_limit: 50\n  rate_burst: 5\n"), 0644))

	require.Eventually(t, func() bool {
		return r.GetConfig().Relay.RateLimit == 50
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	r.Stop()
	assert.Equal(t, ReloadStateStopped, r.State())
}
