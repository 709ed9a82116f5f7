package shutdown

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

func TestNewManager(t *testing.T) {
	m := NewManager(0, nil)

	assert.Equal(t, StateRunning, m.State())
	assert.False(t, m.IsShuttingDown())
	assert.Equal(t, DefaultTimeout, m.timeout)
	assert.Len(t, m.signals, 2)
	assert.Contains(t, m.String(), "state: running")
}

func TestShutdownRunsHooksInOrder(t *testing.T) {
	m := NewManager(time.Second, logger.Discard())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) Hook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.AddHook("relay", record("relay"))
	m.AddHook("grpc", record("grpc"))
	m.AddHook("http", record("http"))

	require.NoError(t, m.Shutdown(context.Background(), "test"))

	assert.Equal(t, []string{"relay", "grpc", "http"}, order)
	assert.Equal(t, StateComplete, m.State())
	assert.Equal(t, "test", m.Reason())

	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed after shutdown")
	}
}

func TestShutdownContinuesPastFailingHook(t *testing.T) {
	m := NewManager(time.Second, logger.Discard())

	boom := errors.New("boom")
	ran := false
	m.AddHook("fails", func(context.Context) error { return boom })
	m.AddHook("after", func(context.Context) error { ran = true; return nil })

	err := m.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)
	assert.Equal(t, err, m.Wait(context.Background()))
}

func TestShutdownTwice(t *testing.T) {
	m := NewManager(time.Second, logger.Discard())
	require.NoError(t, m.Shutdown(context.Background(), "first"))

	err := m.Shutdown(context.Background(), "second")
	assert.True(t, types.IsErrCode(err, types.ErrCodeFailedPrecondition))
	assert.Equal(t, "first", m.Reason())
}

func TestShutdownTimeoutSkipsRemainingHooks(t *testing.T) {
	m := NewManager(50*time.Millisecond, logger.Discard())

	m.AddHook("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	skipped := true
	m.AddHook("late", func(context.Context) error { skipped = false; return nil })

	err := m.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped)
}

func TestWaitCanceled(t *testing.T) {
	m := NewManager(time.Second, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Wait(ctx)
	assert.True(t, types.IsErrCode(err, types.ErrCodeCanceled))
}

func TestSignalTriggersShutdown(t *testing.T) {
	m := NewManager(time.Second, logger.Discard(), syscall.SIGUSR1)
	called := make(chan struct{})
	m.AddHook("signal", func(context.Context) error { close(called); return nil })

	m.Start()
	m.Start()
	defer m.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("hook not run after signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
	assert.Contains(t, m.Reason(), "signal received")
}
