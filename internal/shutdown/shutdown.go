// Package shutdown coordinates process shutdown on SIGINT/SIGTERM. Hooks run
// once, in registration order, under one overall timeout.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// DefaultTimeout bounds the whole shutdown sequence
const DefaultTimeout = 30 * time.Second

// State represents the current state of the shutdown process
type State string

const (
	StateRunning   State = "running"
	StateInitiated State = "initiated"
	StateStopping  State = "stopping"
	StateComplete  State = "complete"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Hook is one step of the shutdown sequence
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Manager runs the registered hooks when a signal arrives or Shutdown is
// called, whichever happens first
type Manager struct {
	mu        sync.RWMutex
	state     State
	timeout   time.Duration
	hooks     []namedHook
	logger    *logger.Logger
	signals   []os.Signal
	sigChan   chan os.Signal
	stopChan  chan struct{}
	started   bool
	done      chan struct{}
	reason    string
	startedAt time.Time
	err       error
}

// NewManager creates a manager. With no signals given it listens for SIGINT
// and SIGTERM.
func NewManager(timeout time.Duration, log *logger.Logger, signals ...os.Signal) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	return &Manager{
		state:   StateRunning,
		timeout: timeout,
		logger:  log.With("component", "shutdown"),
		signals: signals,
		sigChan: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// Start begins listening for shutdown signals. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	signal.Notify(m.sigChan, m.signals...)
	m.stopChan = make(chan struct{})
	m.started = true
	m.logger.Debug("Shutdown manager started", "timeout", m.timeout, "signals", len(m.signals))

	go m.handleSignals(m.stopChan)
}

// Stop stops signal handling without shutting down
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	signal.Stop(m.sigChan)
	close(m.stopChan)
	m.started = false
}

// AddHook appends a named hook. Hooks added after shutdown began are
// not run.
func (m *Manager) AddHook(name string, hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: hook})
}

// Shutdown runs every hook in order. A failing hook does not stop the
// sequence; the first failure is returned. A second call returns
// FAILED_PRECONDITION.
func (m *Manager) Shutdown(ctx context.Context, reason string) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return types.NewError(types.ErrCodeFailedPrecondition, "shutdown already initiated")
	}
	m.state = StateInitiated
	m.reason = reason
	m.startedAt = time.Now()
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	m.logger.Info("Shutdown initiated", "reason", reason, "hooks", len(hooks))

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.setState(StateStopping)
	err := m.runHooks(ctx, hooks)

	m.mu.Lock()
	m.state = StateComplete
	m.err = err
	elapsed := time.Since(m.startedAt)
	m.mu.Unlock()
	close(m.done)

	if err != nil {
		m.logger.Warn("Shutdown complete with errors", "reason", reason, "duration", elapsed, "error", err)
	} else {
		m.logger.Info("Shutdown complete", "reason", reason, "duration", elapsed)
	}
	return err
}

func (m *Manager) runHooks(ctx context.Context, hooks []namedHook) error {
	var errs []error
	for _, h := range hooks {
		if ctx.Err() != nil {
			m.logger.Warn("Shutdown hook skipped, timeout reached", "hook", h.name)
			errs = append(errs, types.WrapError(types.ErrCodeTimeout, "hook "+h.name+" skipped", ctx.Err()))
			continue
		}

		start := time.Now()
		if err := h.fn(ctx); err != nil {
			m.logger.Error("Shutdown hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Debug("Shutdown hook done", "hook", h.name, "duration", time.Since(start))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Done is closed once shutdown completes
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until shutdown completes and returns its result
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.err
	case <-ctx.Done():
		return types.WrapError(types.ErrCodeCanceled, "wait for shutdown canceled", ctx.Err())
	}
}

// State returns the current shutdown state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsShuttingDown reports whether shutdown has begun
func (m *Manager) IsShuttingDown() bool {
	return m.State() != StateRunning
}

// Reason returns why shutdown was initiated
func (m *Manager) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

func (m *Manager) handleSignals(stop <-chan struct{}) {
	for {
		select {
		case sig := <-m.sigChan:
			m.logger.Info("Shutdown signal received", "signal", sig.String())
			if m.IsShuttingDown() {
				continue
			}
			go func() {
				if err := m.Shutdown(context.Background(), "signal received: "+sig.String()); err != nil {
					m.logger.Error("Shutdown failed", "error", err)
				}
			}()
		case <-stop:
			return
		}
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// String returns a string representation of the manager
func (m *Manager) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("shutdown.Manager{state: %s, timeout: %v, hooks: %d, started: %t}",
		m.state, m.timeout, len(m.hooks), m.started)
}
